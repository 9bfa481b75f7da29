// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package agent

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sensorvision/agent/types"
	"gopkg.in/yaml.v2"
)

// Dump formats
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Dump writes a snapshot of the model in the given format
func (a *Agent) Dump(w io.Writer, format string) error {
	return Dump(w, format, a.Snapshot())
}

// Dump writes the sensors in the given format. Maps are written in key order.
func Dump(w io.Writer, format string, sensors types.Sensors) (err error) {
	var out []byte
	switch format {
	case FormatYAML, "yml":
		out, err = yaml.Marshal(sensors)
	case FormatJSON:
		out, err = json.MarshalIndent(sensors, "", "  ")
		out = append(out, '\n')
	default:
		return fmt.Errorf("unknown dump format %q", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
