// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package resources

import (
	"strings"
)

// splitResourceID splits an Azure resource ID into its component parts.
// Example: /subscriptions/xxx/resourceGroups/yyy returns map["subscriptions"]="xxx", map["resourcegroups"]="yyy".
// Keys are lowercased because Azure returns inconsistent casing.
func splitResourceID(resourceID string) map[string]string {
	parts := make(map[string]string)

	segments := []string{}
	for _, seg := range strings.Split(resourceID, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	for i := 0; i < len(segments)-1; i += 2 {
		parts[strings.ToLower(segments[i])] = segments[i+1]
	}

	return parts
}

// normalizeLocation converts a location to "name" format (lowercase, no
// spaces). Azure returns "West US 2" for some kinds and "westus2" for others.
func normalizeLocation(location string) string {
	return strings.ToLower(strings.ReplaceAll(location, " ", ""))
}

// RunTagKey is the tag every resource created by a run carries. The sweep
// matches on it to find and remove leftovers from interrupted runs.
const RunTagKey = "lifecycle-harness-run"

// runTags builds the tag map applied to every resource the harness creates.
func runTags(runID string) map[string]*string {
	if runID == "" {
		return nil
	}
	return map[string]*string{
		RunTagKey: stringPtr(runID),
	}
}

// tagsToMap converts Azure SDK tags to a plain string map for facts records.
// Returns nil for empty input.
func tagsToMap(azureTags map[string]*string) map[string]string {
	if len(azureTags) == 0 {
		return nil
	}
	tags := make(map[string]string, len(azureTags))
	for k, v := range azureTags {
		if v != nil {
			tags[k] = *v
		}
	}
	return tags
}

// stringPtr returns a pointer to a string. Useful for Azure SDK calls.
func stringPtr(s string) *string {
	return &s
}
