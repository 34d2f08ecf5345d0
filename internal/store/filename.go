package store

import (
	"regexp"
	"strings"
	"time"

	"github.com/whnb773/catan-scoreboard/internal/engine"
	"github.com/whnb773/catan-scoreboard/internal/textutil"
)

const (
	maxFilenameTitle = 40
	fallbackFilename = "Catan_Scoreboard"
)

var (
	filenameStrip = regexp.MustCompile(`[^\w\s()-]+`)
	filenameSpace = regexp.MustCompile(`\s+`)
)

// BackupFilename builds "<Title>_backup_<YYYYMMDDHHmm>.json" for an exported board.
func BackupFilename(title string, at time.Time) string {
	if strings.TrimSpace(title) == "" {
		title = engine.DefaultTitle
	}
	name := filenameStrip.ReplaceAllString(textutil.Fold(title), "")
	name = filenameSpace.ReplaceAllString(strings.TrimSpace(name), "_")
	if len(name) > maxFilenameTitle {
		name = name[:maxFilenameTitle]
	}
	if name == "" {
		name = fallbackFilename
	}
	return name + "_backup_" + at.Format("200601021504") + ".json"
}
