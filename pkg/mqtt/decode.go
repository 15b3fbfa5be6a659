package mqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/markus-lassfolk/gpsselect/pkg/gps"
)

// ErrUnknownPayload is returned for payloads that are neither a JSON fix
// nor a supported NMEA sentence
var ErrUnknownPayload = errors.New("unknown fix payload")

// HDOPAccuracyFactor converts HDOP into an accuracy estimate in meters
const HDOPAccuracyFactor = 5.0

// DecodeFix decodes a fix payload. JSON objects are taken as-is; NMEA GGA
// sentences get an accuracy of HDOP*5m, and none at all when the receiver
// reports no fix.
func DecodeFix(payload []byte) (gps.Fix, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return gps.Fix{}, fmt.Errorf("%w: empty", ErrUnknownPayload)
	}

	var fix gps.Fix
	switch payload[0] {
	case '{':
		if err := json.Unmarshal(payload, &fix); err != nil {
			return gps.Fix{}, fmt.Errorf("failed to decode JSON fix: %w", err)
		}
	case '$', '!':
		var err error
		if fix, err = decodeNMEA(string(payload)); err != nil {
			return gps.Fix{}, err
		}
	default:
		return gps.Fix{}, ErrUnknownPayload
	}

	if err := validateFix(fix); err != nil {
		return gps.Fix{}, err
	}
	return fix, nil
}

func decodeNMEA(raw string) (gps.Fix, error) {
	sentence, err := nmea.Parse(raw)
	if err != nil {
		return gps.Fix{}, fmt.Errorf("failed to parse NMEA sentence: %w", err)
	}

	if sentence.DataType() != nmea.TypeGGA {
		return gps.Fix{}, fmt.Errorf("%w: NMEA %s", ErrUnknownPayload, sentence.DataType())
	}

	gga := sentence.(nmea.GGA)
	fix := gps.Fix{
		Latitude:  gga.Latitude,
		Longitude: gga.Longitude,
		Altitude:  gps.Float(gga.Altitude),
	}
	if gga.FixQuality != nmea.Invalid && gga.HDOP > 0 {
		fix.Accuracy = gps.Float(gga.HDOP * HDOPAccuracyFactor)
	}
	return fix, nil
}

func validateFix(fix gps.Fix) error {
	if fix.Latitude < -90 || fix.Latitude > 90 {
		return fmt.Errorf("latitude %g out of range", fix.Latitude)
	}
	if fix.Longitude < -180 || fix.Longitude > 180 {
		return fmt.Errorf("longitude %g out of range", fix.Longitude)
	}
	if fix.Accuracy != nil && *fix.Accuracy < 0 {
		return fmt.Errorf("negative accuracy %g", *fix.Accuracy)
	}
	return nil
}
