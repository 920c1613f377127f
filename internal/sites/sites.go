package sites

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SiteNotFoundError represents an error when a site is not found
type SiteNotFoundError struct {
	SiteID string
}

func (e *SiteNotFoundError) Error() string {
	return fmt.Sprintf("site not found: %s", e.SiteID)
}

// NewSiteNotFoundError creates a new SiteNotFoundError
func NewSiteNotFoundError(siteID string) *SiteNotFoundError {
	return &SiteNotFoundError{SiteID: siteID}
}

// IsNotFound reports whether err is a SiteNotFoundError
func IsNotFound(err error) bool {
	var nf *SiteNotFoundError
	return errors.As(err, &nf)
}

// Site represents a tracked website
type Site struct {
	SiteID      string    `gorm:"primaryKey" json:"site_id"`
	Name        string    `gorm:"not null" json:"name"`
	URL         string    `gorm:"not null" json:"url"`
	Verified    bool      `gorm:"default:false" json:"verified"`
	LastUpdated time.Time `json:"last_updated"`
	CreatedAt   time.Time `json:"created_at"`
}

// GetSiteOrNotFound retrieves a Site by ID, returning SiteNotFoundError when
// no row exists. Accepts a transaction so it can be part of a larger one.
func GetSiteOrNotFound(tx *gorm.DB, siteID string) (*Site, error) {
	var site Site
	if err := tx.Where("site_id = ?", siteID).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewSiteNotFoundError(siteID)
		}
		return nil, fmt.Errorf("unexpected error querying site: %w", err)
	}
	return &site, nil
}

// ListSiteIDs returns the IDs of every registered site
func ListSiteIDs(db *gorm.DB) ([]string, error) {
	var ids []string
	if err := db.Model(&Site{}).Pluck("site_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	return ids, nil
}
