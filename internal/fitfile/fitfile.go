// Package fitfile turns the raw bytes of a device file into the summary
// content the archive stores. Decoding proper is delegated to a Decoder so
// the archive can be exercised without real device files.
package fitfile

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/sadopc/fitarchive/internal/store"
)

// ErrDecode wraps every failure to make sense of a file's bytes.
var ErrDecode = errors.New("decode fit file")

// Kind classifies decoded content.
type Kind int

const (
	KindUnknown Kind = iota
	KindActivity
	KindMonitoring
)

func (k Kind) String() string {
	switch k {
	case KindActivity:
		return "activity"
	case KindMonitoring:
		return "monitoring"
	default:
		return "unknown"
	}
}

// Content is the decoded form of one file. Only the fields matching Kind
// are set.
type Content struct {
	Kind Kind

	// Activity content.
	Start    time.Time
	Sport    string
	SubSport string
	Activity store.ActivitySummary

	// Monitoring content.
	Date       string // YYYY-MM-DD
	Monitoring store.MonitoringSummary
}

// Decoder parses file bytes. Errors wrap ErrDecode.
type Decoder interface {
	Decode(data []byte) (*Content, error)
}

// Fingerprint returns the hex SHA-256 digest of data.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
