package model

import (
	"strings"

	"golang.org/x/xerrors"
)

/*
Device is a placement of model parameters or data
*/
type Device uint8

const (
	Host Device = iota
	Accelerator
)

func (d Device) String() string {
	if d == Accelerator {
		return "accelerator"
	}
	return "host"
}

/*
ParseDevice decodes device name as it's given on the command line
*/
func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(s) {
	case "", "host", "cpu":
		return Host, nil
	case "accelerator", "gpu", "cuda":
		return Accelerator, nil
	}
	return Host, xerrors.Errorf("unknown device `%v`", s)
}

/*
ResolveDevice returns the device the network parameters live on,
the data device when the network has no parameters and host otherwise
*/
func ResolveDevice(net Network, data *Dataset) Device {
	if net != nil && net.ParamCount() > 0 {
		return net.Device()
	}
	if data != nil {
		return data.Device
	}
	return Host
}
