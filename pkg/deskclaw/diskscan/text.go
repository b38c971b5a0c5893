package diskscan

import (
	"errors"
	"fmt"
	"strings"
)

// maxListed caps how many entries the chat renderings print.
const maxListed = 50

// FormatVolumes renders Roots output as a chat reply.
func FormatVolumes(vols []Volume) string {
	if len(vols) == 0 {
		return "No drives found."
	}
	var sb strings.Builder
	sb.WriteString("Drives:\n")
	for _, v := range vols {
		if v.Error != "" {
			fmt.Fprintf(&sb, "  %s: %s\n", v.Path, v.Error)
			continue
		}
		fmt.Fprintf(&sb, "  %s: %s free of %s\n", v.Path, v.FreeFormatted, v.TotalFormatted)
	}
	return sb.String()
}

func (l *Listing) String() string {
	if len(l.Children) == 0 {
		return l.Path + " is empty."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%d items):\n", l.Path, len(l.Children))
	for i, c := range l.Children {
		if i == maxListed {
			fmt.Fprintf(&sb, "  ... and %d more\n", len(l.Children)-maxListed)
			break
		}
		if c.Type == "directory" {
			fmt.Fprintf(&sb, "  [dir]  %s\n", c.Name)
		} else {
			fmt.Fprintf(&sb, "  %s (%s)\n", c.Name, c.SizeFormatted)
		}
	}
	return sb.String()
}

func (p *PathInfo) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n- Type: %s\n", p.Path, p.Type)
	if p.Type != "directory" {
		fmt.Fprintf(&sb, "- Size: %s\n", p.SizeFormatted)
	}
	if p.ChildCount != nil {
		fmt.Fprintf(&sb, "- Items: %d\n", *p.ChildCount)
	}
	if !p.LastModified.IsZero() {
		fmt.Fprintf(&sb, "- Modified: %s\n", p.LastModified.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&sb, "- Readable: %s, Writable: %s, Hidden: %s", yesNo(p.Readable), yesNo(p.Writable), yesNo(p.Hidden))
	return sb.String()
}

func (r *SearchResult) String() string {
	if r.ResultCount == 0 {
		return fmt.Sprintf("No matches for %s in %s.", r.Pattern, r.BasePath)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d match(es) for %s in %s:\n", r.ResultCount, r.Pattern, r.BasePath)
	for i, f := range r.Results {
		if i == maxListed {
			fmt.Fprintf(&sb, "  ... and %d more\n", r.ResultCount-maxListed)
			break
		}
		fmt.Fprintf(&sb, "  %s\n", f.Path)
	}
	if r.Truncated {
		sb.WriteString("(results truncated)\n")
	}
	return sb.String()
}

// Describe turns a service error into a plain sentence for the user.
func Describe(err error) string {
	switch {
	case errors.Is(err, ErrDisabled):
		return "Disk browsing is disabled. Enable diskscan in the config to use it."
	case errors.Is(err, ErrBlocked):
		return "Access to that location is not allowed."
	case errors.Is(err, ErrNotFound):
		return "Path not found."
	case errors.Is(err, ErrNotDirectory):
		return "That path is not a folder."
	case errors.Is(err, ErrInvalid):
		return "Please give me a path (and a pattern for searches)."
	default:
		return "Could not read that location: " + err.Error()
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
