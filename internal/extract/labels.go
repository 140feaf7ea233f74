package extract

import "strings"

// sizeCategory is the label category carrying the pull request size class
const sizeCategory = "size"

// standaloneCategories are label categories reported as their own record
// attribute and therefore left out of the generic label list
var standaloneCategories = map[string]struct{}{
	sizeCategory: {},
}

// category returns the part of a label before the first '/', or the whole label
func category(label string) string {
	if i := strings.Index(label, "/"); i >= 0 {
		return label[:i]
	}
	return label
}

// Size returns the size class of a "size/<SIZE>" label, or nil when none is present.
// Only the segment right after the category counts: "size/L/extra" is "L".
func Size(labels []string) *string {
	for _, label := range labels {
		segments := strings.Split(label, "/")
		if segments[0] != sizeCategory || len(segments) < 2 || segments[1] == "" {
			continue
		}
		size := segments[1]
		return &size
	}
	return nil
}

// Labels returns the labels that are not standalone, preserving their order
func Labels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		if _, standalone := standaloneCategories[category(label)]; standalone {
			continue
		}
		out = append(out, label)
	}
	return out
}
