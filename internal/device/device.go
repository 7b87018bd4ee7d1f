// Package device describes the machine the console runs on. The backend
// binds an OTP challenge to the device id sent with the login call, so the
// id is generated once and persisted next to the tokens.
package device

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/BradenHooton/billdesk/internal/clock"
	"github.com/BradenHooton/billdesk/internal/config"
	"github.com/BradenHooton/billdesk/internal/models"
	"github.com/BradenHooton/billdesk/internal/storage"
)

// KeyDeviceID is the storage key of the persisted device id.
const KeyDeviceID = "device_id"

const randomSuffixLength = 9

// Descriptor is the static description of this device.
type Descriptor struct {
	ID    string
	Type  string
	Model string
	Name  string
	OS    string
}

// LoadOrCreate returns the descriptor for this device, generating and
// persisting a new id on first use. A storage failure yields a fresh id
// that lives for the process only.
func LoadOrCreate(kv storage.KV, cfg config.DeviceConfig, clk clock.Clock, logger *slog.Logger) *Descriptor {
	d := &Descriptor{
		Type:  cfg.Type,
		Model: cfg.Model,
		Name:  cfg.Name,
		OS:    cfg.OS,
	}

	id, ok, err := kv.Get(KeyDeviceID)
	if err != nil {
		logger.Warn("failed to read device id, using an ephemeral one", slog.Any("error", err))
	}
	if ok && id != "" {
		d.ID = id
		return d
	}

	d.ID = NewID(clk)
	if err == nil {
		if err := kv.Set(KeyDeviceID, d.ID); err != nil {
			logger.Warn("failed to persist device id", slog.Any("error", err))
		}
	}
	logger.Info("registered new device id", slog.String("device_id", d.ID))
	return d
}

// NewID builds an id of the form device-{unix-ms}-{random}.
func NewID(clk clock.Clock) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("device-%d-%s", clk.Now().UnixMilli(), random[:randomSuffixLength])
}

// LoginInfo is the device block sent with the login call.
func (d *Descriptor) LoginInfo() models.DeviceInfo {
	return models.DeviceInfo{
		DeviceID:    d.ID,
		DeviceType:  d.Type,
		DeviceModel: d.Model,
		OSName:      d.OS,
	}
}

// VerifyInfo is the device block sent with the verification call.
func (d *Descriptor) VerifyInfo() models.DeviceInfo {
	return models.DeviceInfo{
		DeviceID:   d.ID,
		DeviceType: d.Type,
		DeviceName: d.Name,
		OSName:     d.OS,
	}
}
