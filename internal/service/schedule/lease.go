package schedule

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	leaseDirName  = "schedule-leases"
	leaseGraceTTL = 30 * time.Second
)

// lease is the on-disk record of a delivery in flight. Gateways sharing a
// data dir skip a schedule while another process holds its lease.
type lease struct {
	LeaseID    string `json:"lease_id"`
	ScheduleID string `json:"schedule_id"`
	Owner      string `json:"owner"`
	AcquiredAt string `json:"acquired_at"`
	ExpiresAt  string `json:"expires_at"`
}

type leaseHandle struct {
	path    string
	leaseID string
}

// tryAcquireLease returns ok=false when another holder owns an unexpired
// lease. With no data dir configured every call succeeds with a nil handle.
func (s *Service) tryAcquireLease(scheduleID string) (*leaseHandle, bool, error) {
	dataDir := strings.TrimSpace(s.deps.DataDir)
	if dataDir == "" {
		return nil, true, nil
	}
	dir := filepath.Join(dataDir, leaseDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, false, err
	}
	path := filepath.Join(dir, encodeScheduleID(scheduleID)+".json")

	now := s.deps.Now().UTC()
	if err := removeExpiredLease(path, now); err != nil {
		return nil, false, err
	}

	held := lease{
		LeaseID:    uuid.NewString(),
		ScheduleID: scheduleID,
		Owner:      fmt.Sprintf("pid:%d", os.Getpid()),
		AcquiredAt: now.Format(time.RFC3339Nano),
		ExpiresAt:  now.Add(s.deps.SendTimeout + leaseGraceTTL).Format(time.RFC3339Nano),
	}
	body, err := json.Marshal(held)
	if err != nil {
		return nil, false, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		_ = removeIfExists(path)
		return nil, false, err
	}
	if err := f.Close(); err != nil {
		_ = removeIfExists(path)
		return nil, false, err
	}
	return &leaseHandle{path: path, leaseID: held.LeaseID}, true, nil
}

// releaseLease removes the lease file only if it still carries our id.
func (s *Service) releaseLease(handle *leaseHandle) {
	if handle == nil {
		return
	}
	body, err := os.ReadFile(handle.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		s.deps.Logger.Warn("schedule lease read failed", zap.String("path", handle.path), zap.Error(err))
		return
	}
	var held lease
	if err := json.Unmarshal(body, &held); err == nil && held.LeaseID != handle.leaseID {
		return
	}
	if err := removeIfExists(handle.path); err != nil {
		s.deps.Logger.Warn("schedule lease release failed", zap.String("path", handle.path), zap.Error(err))
	}
}

func removeExpiredLease(path string, now time.Time) error {
	body, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var held lease
	if err := json.Unmarshal(body, &held); err != nil {
		return removeIfExists(path)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(held.ExpiresAt))
	if err != nil || now.After(expiresAt) {
		return removeIfExists(path)
	}
	return nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func encodeScheduleID(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}
