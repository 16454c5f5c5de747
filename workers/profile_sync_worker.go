// workers/profile_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"techfest-registration/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteProfile matches one entry of the identity provider's profile feed.
type RemoteProfile struct {
	ExternalID string     `json:"external_id"`
	Username   string     `json:"username"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Email      string     `json:"email"`
	IsStaff    bool       `json:"is_staff"`
	Institute  string     `json:"institute"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

type profileChangesResponse struct {
	Profiles []RemoteProfile `json:"profiles"`
}

// ProfileSyncWorker mirrors identity-provider profiles into the profiles table.
type ProfileSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string // e.g. "http://localhost:8500"
	endpointPath string // e.g. "/api/v1/public/profiles"
	serviceToken string
	httpClient   *http.Client
}

func NewProfileSyncWorker(db *gorm.DB, baseURL, endpointPath, serviceToken string, interval time.Duration) *ProfileSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProfileSyncWorker{
		db:           db,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	log.Println("[SYNC] starting profile sync worker")
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx, time.Time{}); err != nil {
		log.Printf("[SYNC] initial sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Upserts are idempotent, so overlap one interval to cover clock skew.
			if _, err := w.SyncOnce(ctx, w.lastSyncTime().Add(-w.interval)); err != nil {
				log.Printf("[SYNC] sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("[SYNC] profile sync worker stopped")
			return
		}
	}
}

// lastSyncTime is the newest LastSyncedAt among mirrored profiles.
func (w *ProfileSyncWorker) lastSyncTime() time.Time {
	var p models.Profile
	err := w.db.Unscoped().
		Where("last_synced_at IS NOT NULL").
		Order("last_synced_at DESC").
		Select("last_synced_at").
		First(&p).Error
	if err != nil || p.LastSyncedAt == nil {
		return time.Unix(0, 0)
	}
	return *p.LastSyncedAt
}

func (w *ProfileSyncWorker) fetch(ctx context.Context, since time.Time) ([]RemoteProfile, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid profile sync URL %q: %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(w.endpointPath)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if w.serviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+w.serviceToken)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile feed request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("profile feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode profile feed: %w", err)
	}
	return out.Profiles, nil
}

// SyncOnce pulls changes since the given time and upserts them. It returns
// how many profiles were written.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context, since time.Time) (int, error) {
	remote, err := w.fetch(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(remote) == 0 {
		return 0, nil
	}

	now := time.Now()
	var upserted, failed int
	for _, rp := range remote {
		if err := w.upsert(rp, now); err != nil {
			failed++
			log.Printf("[SYNC] failed to upsert profile external_id=%q username=%q: %v", rp.ExternalID, rp.Username, err)
			continue
		}
		upserted++
	}
	log.Printf("[SYNC] synced %d profiles (%d upserted, %d errors)", len(remote), upserted, failed)
	return upserted, nil
}

func (w *ProfileSyncWorker) upsert(rp RemoteProfile, now time.Time) error {
	if rp.ExternalID == "" || rp.Username == "" {
		return fmt.Errorf("external_id and username are required")
	}
	return w.db.Transaction(func(tx *gorm.DB) error {
		var instituteID *string
		if name := strings.TrimSpace(rp.Institute); name != "" {
			inst := models.Institute{}
			if err := tx.Where(models.Institute{Name: name}).
				Attrs(models.Institute{ID: uuid.NewString()}).
				FirstOrCreate(&inst).Error; err != nil {
				return fmt.Errorf("resolve institute: %w", err)
			}
			instituteID = &inst.ID
		}

		p := models.Profile{
			ID:             uuid.NewString(),
			ExternalUserID: rp.ExternalID,
			Username:       rp.Username,
			FirstName:      rp.FirstName,
			LastName:       rp.LastName,
			Email:          rp.Email,
			IsStaff:        rp.IsStaff,
			InstituteID:    instituteID,
			LastSyncedAt:   &now,
		}
		if rp.DeletedAt != nil {
			p.DeletedAt = gorm.DeletedAt{Time: *rp.DeletedAt, Valid: true}
		}
		return tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "first_name", "last_name", "email", "is_staff",
				"institute_id", "last_synced_at", "updated_at", "deleted_at",
			}),
		}).Create(&p).Error
	})
}
