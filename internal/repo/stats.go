// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/room-access-backend/internal/domain"
)

// DevicesStats returns the number of devices and the latest instant at which
// anything shown in the device listing changed: a device was created, an
// operation was approved, or a note was added.
//
// When there are no devices, the returned count is 0 and changedAt is nil.
func DevicesStats(ctx context.Context, db *gorm.DB) (count int64, changedAt *time.Time, err error) {
	if err = db.WithContext(ctx).Model(&domain.Device{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var latest time.Time
	probes := []struct {
		model  any
		column string
	}{
		{&domain.Device{}, "created_at"},
		{&domain.DeviceOperation{}, "timestamp"},
		{&domain.DeviceNote{}, "created_at"},
	}
	for _, p := range probes {
		// Order+Limit instead of MAX(): SQLite would hand MAX() back as TEXT.
		var ts []time.Time
		if err = db.WithContext(ctx).Model(p.model).
			Order(p.column+" desc").
			Limit(1).
			Pluck(p.column, &ts).Error; err != nil {
			return 0, nil, err
		}
		if len(ts) > 0 && ts[0].After(latest) {
			latest = ts[0]
		}
	}
	return count, &latest, nil
}
