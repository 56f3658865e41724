package portal

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/solarpull/solarpull/pkg/log"
	"github.com/solarpull/solarpull/pkg/types"
)

// ErrNoMetadata is returned when the XML feed has nothing for a site.
var ErrNoMetadata = errors.New("no metadata for site")

var metadataErrors = []string{
	"Invalid site id",
	"Invalid XMLfeed request",
	"Unknown or bad timezone",
}

var metadataTags = []string{
	"name", "activationDate", "latitude", "longitude",
	"line1", "city", "state", "postal", "timezone",
}

// SiteMetadata describes a site as reported by the portal's XML feed. Values
// are left as the portal spells them.
type SiteMetadata struct {
	SiteID         string
	Name           string
	ActivationDate string
	Latitude       string
	Longitude      string
	Line1          string
	City           string
	State          string
	Postal         string
	Timezone       string
}

// SiteMetadata asks the XML feed for the descriptive data of siteID.
func (c *Client) SiteMetadata(ctx context.Context, siteID string) (SiteMetadata, error) {
	raw, err := c.get(ctx, "metadata", c.baseURL+"/xmlfeed/ss-xmlN.php?site_id="+siteID)
	if errors.Is(err, errRejected) {
		return SiteMetadata{}, fmt.Errorf("%w: %w", ErrNoMetadata, err)
	}
	if err != nil {
		return SiteMetadata{}, err
	}
	if strings.TrimSpace(raw) == "" {
		return SiteMetadata{}, ErrNoMetadata
	}
	for _, e := range metadataErrors {
		if strings.Contains(raw, e) {
			log.Ctx(ctx).DebugContext(ctx, "xml feed rejected site", slog.String("siteID", siteID), slog.String("reason", e))
			return SiteMetadata{}, ErrNoMetadata
		}
	}

	vals, err := parseMetadata(raw)
	if err != nil {
		return SiteMetadata{}, fmt.Errorf("failed to parse xml feed for site %s: %w", siteID, err)
	}
	return SiteMetadata{
		SiteID:         siteID,
		Name:           vals["name"],
		ActivationDate: vals["activationDate"],
		Latitude:       vals["latitude"],
		Longitude:      vals["longitude"],
		Line1:          vals["line1"],
		City:           vals["city"],
		State:          vals["state"],
		Postal:         vals["postal"],
		Timezone:       vals["timezone"],
	}, nil
}

// ExportName discovers the name the portal gives siteID's exports by asking
// for today's day view and reading it off the download link. ok is false when
// the portal offers no export for the site.
func (c *Client) ExportName(ctx context.Context, siteID string) (string, bool, error) {
	page, err := c.get(ctx, "view", c.viewURL(siteID, types.WindowSpec{Granularity: types.Day}))
	if err := notServed(ctx, err); err != nil {
		return "", false, err
	}
	name := exportNameFromPath(siteID, extractDownloadPath(page))
	return name, name != "", nil
}

// exportNameFromPath pulls <name> out of ".../Site<id>_<name>(...).csv".
func exportNameFromPath(siteID, p string) string {
	if p == "" {
		return ""
	}
	base, ok := strings.CutPrefix(path.Base(p), "Site"+siteID+"_")
	if !ok {
		return ""
	}
	if i := strings.Index(base, "("); i >= 0 {
		base = base[:i]
	} else {
		base = strings.TrimSuffix(base, ".csv")
	}
	return strings.TrimSpace(base)
}

// parseMetadata returns the text of the first element with each metadata
// tag name, wherever it sits in the document.
func parseMetadata(raw string) (map[string]string, error) {
	want := map[string]bool{}
	for _, t := range metadataTags {
		want[t] = true
	}
	vals := map[string]string{}

	d := xml.NewDecoder(strings.NewReader(raw))
	d.Strict = false
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || !want[se.Name.Local] {
			continue
		}
		if _, seen := vals[se.Name.Local]; seen {
			continue
		}
		var text string
		if err := d.DecodeElement(&text, &se); err != nil {
			return nil, err
		}
		vals[se.Name.Local] = strings.ReplaceAll(strings.TrimSpace(text), "?", "")
	}
	if len(vals) == 0 {
		return nil, errors.New("feed contained none of the expected elements")
	}
	return vals, nil
}
