package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cafetrace/internal/model"
)

// parseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD or RFC 3339)", s)
	}
	return t, nil
}

// optionalDate reads a date flag, returning nil when it was not given.
func optionalDate(cmd *cobra.Command, name string) (*time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return nil, nil
	}
	t, err := parseDate(v)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &t, nil
}

// optionalFloat returns a pointer to the flag's value only if it was set.
func optionalFloat(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return &v
}

// locationFromFlags builds a Location from --location, --region, --country,
// --lat, --lon and --altitude. It returns nil when none were given.
func locationFromFlags(cmd *cobra.Command) *model.Location {
	name, _ := cmd.Flags().GetString("location")
	region, _ := cmd.Flags().GetString("region")
	country, _ := cmd.Flags().GetString("country")
	loc := &model.Location{
		Name:      name,
		Region:    region,
		Country:   country,
		Latitude:  optionalFloat(cmd, "lat"),
		Longitude: optionalFloat(cmd, "lon"),
		AltitudeM: optionalFloat(cmd, "altitude"),
	}
	if *loc == (model.Location{}) {
		return nil
	}
	return loc
}

func addLocationFlags(cmd *cobra.Command) {
	cmd.Flags().String("location", "", "location name")
	cmd.Flags().String("region", "", "location region")
	cmd.Flags().String("country", "", "location country code")
	cmd.Flags().Float64("lat", 0, "latitude")
	cmd.Flags().Float64("lon", 0, "longitude")
	cmd.Flags().Float64("altitude", 0, "altitude in meters")
}

// parseAttributes turns key=value pairs into a map.
func parseAttributes(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid attribute %q (want key=value)", p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

// eventTypeArg normalises a user-typed event or status name, so
// "ready-for-export" and "READY_FOR_EXPORT" are the same.
func eventTypeArg(s string) model.EventType {
	return model.EventType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
}
