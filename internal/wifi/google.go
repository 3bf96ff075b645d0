// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package wifi

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/relabs-tech/locator/internal/location"
)

var ErrLookup = errors.New("wifi: access point lookup failed")

// Geolocator is the part of the Google Maps client the resolver needs.
type Geolocator interface {
	Geolocate(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error)
}

// GoogleResolver resolves one access point at a time with the Geolocation
// API. IP-based positioning is disabled so a failed lookup stays failed.
type GoogleResolver struct {
	client Geolocator
}

func NewGoogleResolver(apiKey string) (*GoogleResolver, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("wifi: geolocation client: %w", err)
	}
	return &GoogleResolver{client: client}, nil
}

func (r *GoogleResolver) Resolve(ctx context.Context, ap location.AccessPoint) (float64, float64, error) {
	req := &maps.GeolocationRequest{
		WiFiAccessPoints: []maps.WiFiAccessPoint{{
			MACAddress:     ap.BSSID,
			SignalStrength: float64(ap.SignalDBm),
			Channel:        ap.Channel,
		}},
		ConsiderIP: false,
	}
	resp, err := r.client.Geolocate(ctx, req)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", ErrLookup, ap.BSSID, err)
	}
	return resp.Location.Lat, resp.Location.Lng, nil
}
