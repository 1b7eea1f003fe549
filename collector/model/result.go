package model

import (
	"fmt"
	"time"

	"github.com/robertof/go-jbd-exporter/device"
	"github.com/robertof/go-jbd-exporter/jbd"
)

// DeviceRecord is a decoded record tagged with the device that produced it.
type DeviceRecord struct {
	device.Device
	Record jbd.Record
	At time.Time
}

func (r DeviceRecord) String() string {
	return fmt.Sprintf("%v:%v", r.Device.Name(), r.Record)
}
