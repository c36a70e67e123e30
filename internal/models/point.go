package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Point is a geographic coordinate stored as a postgres point "(lng,lat)"
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks the coordinate bounds
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return errors.Errorf("latitude %v out of range [-90,90]", p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return errors.Errorf("longitude %v out of range [-180,180]", p.Lng)
	}
	return nil
}

// GormDataType sets the column type
func (Point) GormDataType() string {
	return "point"
}

// Value implements driver.Valuer
func (p Point) Value() (driver.Value, error) {
	return fmt.Sprintf("(%s,%s)",
		strconv.FormatFloat(p.Lng, 'f', -1, 64),
		strconv.FormatFloat(p.Lat, 'f', -1, 64)), nil
}

// Scan implements sql.Scanner
func (p *Point) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		*p = Point{}
		return nil
	default:
		return errors.Errorf("cannot scan %T into Point", src)
	}

	parts := strings.Split(strings.Trim(strings.TrimSpace(raw), "()"), ",")
	if len(parts) != 2 {
		return errors.Errorf("malformed point %q", raw)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return errors.Wrapf(err, "malformed point longitude %q", raw)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return errors.Wrapf(err, "malformed point latitude %q", raw)
	}
	p.Lat, p.Lng = lat, lng
	return nil
}
