package signerclient

var ToWire = toWire
