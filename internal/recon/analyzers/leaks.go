package analyzers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/h2non/filetype"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
)

var (
	windowsPathRe = regexp.MustCompile(`[a-zA-Z]:\\[a-zA-Z0-9_ \-.\\]+\.[a-zA-Z0-9]{2,5}`)
	unixHomeRe    = regexp.MustCompile(`/(?:Users|home)/[a-zA-Z0-9_\-.]+/[a-zA-Z0-9_ \-./]+\.[a-zA-Z0-9]{2,5}`)
	userDirRe     = regexp.MustCompile(`(?i)(?:Users|home)[\\/]([^\\/\n]+)[\\/]`)
)

var noiseUsers = map[string]bool{"admin": true, "default": true, "public": true, "all users": true, "default user": true}

var noisePaths = []string{"program files", "system32", "windows\\winsxs"}

// Leaks scans embedded objects for file paths and user names left behind by
// the machine that created them, and lists cached contacts.
type Leaks struct{}

func (Leaks) Name() string { return "leaks" }

func (l Leaks) Analyze(ctx context.Context, c *container.Container, r *Report) error {
	var objects []string
	for _, prefix := range []string{"word/embeddings/", "xl/embeddings/", "ppt/embeddings/"} {
		objects = append(objects, c.List(prefix, "")...)
	}
	if c.Family().IsODF() {
		for _, name := range c.Entries() {
			if strings.HasPrefix(name, "Object") && !strings.HasSuffix(name, ".xml") {
				objects = append(objects, name)
			}
		}
	}

	seenPaths := make(map[string]bool)
	for _, name := range objects {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := c.Bytes(name)
		if err != nil {
			r.Add(l.Name(), models.SeverityInfo, fmt.Sprintf("Embedded object %s unreadable: %v", name, err))
			continue
		}

		kind := "unknown"
		if t, err := filetype.Match(data); err == nil && t != filetype.Unknown {
			kind = t.MIME.Value
		} else if isOLE(data) {
			kind = "application/x-ole-storage"
		}
		r.Add(l.Name(), models.SeverityInfo,
			fmt.Sprintf("Embedded object %s (%s, %s)", name, kind, humanize.Bytes(uint64(len(data)))),
			"part", name, "type", kind)

		for _, p := range extractPaths(data) {
			if seenPaths[p] {
				continue
			}
			seenPaths[p] = true
			r.Add(l.Name(), models.SeverityWarning, fmt.Sprintf("Path in %s: %s", name, p), "part", name, "path", p)

			if r.LeakedIdentity != "" {
				continue
			}
			if user := userFromPath(p); user != "" {
				r.LeakedIdentity = user
				r.Flag(l.Name(), models.SeverityDanger, "USER LEAK",
					fmt.Sprintf("User name %q leaked through embedded path", user), "user", user, "path", p)
			}
		}

		// Profile directories also show up without a file name, e.g. temp
		// folders and working directories.
		if r.LeakedIdentity == "" {
			if user, dir := userFromData(data); user != "" {
				r.LeakedIdentity = user
				r.Flag(l.Name(), models.SeverityDanger, "USER LEAK",
					fmt.Sprintf("User name %q leaked through embedded profile directory", user), "user", user, "path", dir)
			}
		}
	}

	l.people(c, r)
	return nil
}

// people lists cached co-author identities from word/people.xml.
func (l Leaks) people(c *container.Container, r *Report) {
	for _, person := range find(c.XML("word/people.xml"), "person") {
		author := attr(person, "author")
		info := child(person, "presenceInfo")
		provider, userID := attr(info, "providerId"), attr(info, "userId")
		msg := "Cached contact: " + author
		if userID != "" {
			msg += fmt.Sprintf(" (%s: %s)", provider, userID)
		}
		r.Add(l.Name(), models.SeverityInfo, msg, "author", author, "provider", provider, "user_id", userID)
	}
}

// extractPaths returns the distinct non-noise file paths found in data.
func extractPaths(data []byte) []string {
	seen := make(map[string]bool)
	var out []string
	for _, view := range binaryViews(data) {
		matches := windowsPathRe.FindAllString(view, -1)
		matches = append(matches, unixHomeRe.FindAllString(view, -1)...)
		for _, m := range matches {
			m = strings.TrimSpace(m)
			if seen[m] || isNoisePath(m) {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func isNoisePath(p string) bool {
	lower := strings.ToLower(p)
	for _, n := range noisePaths {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// userFromPath returns the profile directory name of a user-rooted path.
func userFromPath(p string) string {
	m := userDirRe.FindStringSubmatch(p)
	if m == nil {
		return ""
	}
	return validUser(m[1])
}

// userFromData returns the first plausible profile directory name in any
// rendering of data, with the matched directory fragment.
func userFromData(data []byte) (string, string) {
	for _, view := range binaryViews(data) {
		for _, m := range userDirRe.FindAllStringSubmatch(view, -1) {
			if user := validUser(m[1]); user != "" {
				return user, m[0]
			}
		}
	}
	return "", ""
}

func validUser(user string) string {
	user = strings.TrimSpace(user)
	if user == "" || len(user) >= 20 || noiseUsers[strings.ToLower(user)] {
		return ""
	}
	return user
}

var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

func isOLE(data []byte) bool {
	if len(data) < len(oleMagic) {
		return false
	}
	for i, b := range oleMagic {
		if data[i] != b {
			return false
		}
	}
	return true
}
