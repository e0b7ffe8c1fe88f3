package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Alia5/motionpad/motion/source"
)

// Sensors lists the IIO devices a run could use.
type Sensors struct {
	IIORoot string `name:"iio-root" help:"IIO sysfs root" default:"/sys/bus/iio/devices" env:"MOTIONPAD_SOURCE_IIO_ROOT"`
}

func (s *Sensors) Run() error {
	return s.list(os.Stdout)
}

func (s *Sensors) list(w io.Writer) error {
	devs, err := source.ListIIODevices(s.IIORoot)
	if err != nil {
		return fmt.Errorf("list IIO devices: %w", err)
	}
	if len(devs) == 0 {
		_, err := fmt.Fprintln(w, "no motion sensors found")
		return err
	}
	for _, d := range devs {
		kinds := make([]string, len(d.Kinds))
		for i, k := range d.Kinds {
			kinds[i] = k.String()
		}
		if _, err := fmt.Fprintf(w, "%-24s %-16s %s\n", d.Path, d.Name, strings.Join(kinds, ",")); err != nil {
			return err
		}
	}
	return nil
}
