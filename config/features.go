package config

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles with gradual per-user rollout.
// A user lands in a stable bucket per feature, so raising the percentage
// only ever adds users.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string

	// RolloutPercent in [0, 100]. 0 is off, 100 is on for everyone.
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// Notify the followed user about a new follower.
	FeatureNotifyNewFollower = "notify_new_follower"

	// Recompute reputation of both sides after follow changes.
	FeatureReputationOnFollow = "reputation_on_follow"

	// Record leaderboard appearances and best ranks in social stats.
	FeatureStandingRecorder = "standing_recorder"

	// Pre-build popular anonymous pages on a schedule.
	FeatureWarmPages = "warm_pages"
)

func defaultFeatures() map[string]*Feature {
	return map[string]*Feature{
		FeatureNotifyNewFollower: {
			Name:           FeatureNotifyNewFollower,
			Description:    "Notify users about new followers",
			RolloutPercent: 100,
		},
		FeatureReputationOnFollow: {
			Name:           FeatureReputationOnFollow,
			Description:    "Recompute reputation when the follow graph changes",
			RolloutPercent: 100,
		},
		FeatureStandingRecorder: {
			Name:           FeatureStandingRecorder,
			Description:    "Track leaderboard appearances and best ranks",
			RolloutPercent: 100,
		},
		FeatureWarmPages: {
			Name:           FeatureWarmPages,
			Description:    "Pre-build anonymous leaderboard pages",
			RolloutPercent: 100,
		},
	}
}

// NewFeatureFlags applies overrides on top of the defaults. Values may be
// booleans, integers 0-100 or their string forms (as env vars arrive).
func NewFeatureFlags(overrides map[string]any) (*FeatureFlags, error) {
	ff := &FeatureFlags{features: defaultFeatures()}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []string
	for _, name := range names {
		feature, ok := ff.features[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("features.%s: unknown feature", name))
			continue
		}
		percent, err := parseRollout(overrides[name])
		if err != nil {
			errs = append(errs, fmt.Sprintf("features.%s: %v", name, err))
			continue
		}
		feature.RolloutPercent = percent
	}
	if len(errs) > 0 {
		return nil, &FeatureFlagError{Problems: errs}
	}
	return ff, nil
}

func parseRollout(v any) (int, error) {
	switch val := v.(type) {
	case bool:
		if val {
			return 100, nil
		}
		return 0, nil
	case int:
		return checkPercent(val)
	case int64:
		return checkPercent(int(val))
	case float64:
		if val != float64(int(val)) {
			return 0, fmt.Errorf("rollout %v is not a whole percentage", val)
		}
		return checkPercent(int(val))
	case string:
		s := strings.TrimSpace(val)
		if b, err := strconv.ParseBool(s); err == nil {
			return parseRollout(b)
		}
		n, err := strconv.Atoi(strings.TrimSuffix(s, "%"))
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as bool or percentage", val)
		}
		return checkPercent(n)
	default:
		return 0, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

func checkPercent(n int) (int, error) {
	if n < 0 || n > 100 {
		return 0, fmt.Errorf("rollout %d outside 0-100", n)
	}
	return n, nil
}

// IsEnabled reports whether featureName is on for userID. An empty userID
// asks whether the feature is on at all.
func (ff *FeatureFlags) IsEnabled(featureName, userID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok || feature.RolloutPercent <= 0 {
		return false
	}
	if feature.RolloutPercent >= 100 || userID == "" {
		return true
	}
	return inRollout(featureName, userID, feature.RolloutPercent)
}

// inRollout hashes feature and user together so buckets differ per feature.
func inRollout(featureName, userID string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte{0})
	h.Write([]byte(userID))
	return int(h.Sum32()%100) < percent
}

// SetRolloutPercent changes a feature at runtime.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	if _, err := checkPercent(percent); err != nil {
		return err
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return &FeatureFlagError{Problems: []string{"unknown feature " + featureName}}
	}
	feature.RolloutPercent = percent
	return nil
}

// GetAllFeatures returns a snapshot of every flag.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make(map[string]Feature, len(ff.features))
	for name, f := range ff.features {
		out[name] = *f
	}
	return out
}

// FeatureFlagError collects invalid feature settings.
type FeatureFlagError struct {
	Problems []string
}

func (e *FeatureFlagError) Error() string {
	return strings.Join(e.Problems, "; ")
}
