package domain

import "time"

// recentWindow is how long a discovery counts as "recent" after capture.
const recentWindow = 24 * time.Hour

// Discovery is one identified plant, flower or insect in a user's journal.
type Discovery struct {
	ID        string
	Name      string
	AISummary string
	ImagePath string
	Timestamp time.Time
	UserID    string
}

// NewDiscovery builds a Discovery with its timestamp truncated to the
// millisecond precision the store persists.
func NewDiscovery(id, name, aiSummary, imagePath, userID string, ts time.Time) *Discovery {
	return &Discovery{
		ID:        id,
		Name:      name,
		AISummary: aiSummary,
		ImagePath: imagePath,
		Timestamp: time.UnixMilli(ts.UnixMilli()),
		UserID:    userID,
	}
}

func (d *Discovery) IsRecent(now time.Time) bool {
	return now.Sub(d.Timestamp) < recentWindow
}

// FormattedDate renders the capture time as "November 13, 2023 at 02:45 PM".
func (d *Discovery) FormattedDate() string {
	return d.Timestamp.Format("January 02, 2006 at 03:04 PM")
}

// ShortDate renders the capture date as "10/22/2023".
func (d *Discovery) ShortDate() string {
	return d.Timestamp.Format("01/02/2006")
}

// Identification is the parsed answer of the vision model. It is never stored
// on its own; a Discovery is built from it.
type Identification struct {
	Name    string
	FunFact string
}

type DiscoveryStats struct {
	TotalDiscoveries int
}

const (
	ProviderPassword  = "password"
	ProviderFederated = "federated"
)

type User struct {
	ID          string
	Email       string
	DisplayName string
	Provider    string
	CreatedAt   time.Time
}
