package analysis

import (
	"math"
	"sort"
)

// Scene is a candidate interval of the source video, in seconds.
type Scene struct {
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Duration  float64 `json:"duration"`
	Score     float64 `json:"score"`
	Fallback  bool    `json:"fallback,omitempty"`
}

type Config struct {
	MinDuration      float64
	MaxDuration      float64
	IdealDuration    float64
	LeadIn           float64
	LeadOut          float64
	MinSpacing       float64
	FallbackDuration float64
	FallbackScore    float64
	SceneThreshold   float64
}

func DefaultConfig() Config {
	return Config{
		MinDuration:      15,
		MaxDuration:      60,
		IdealDuration:    30,
		LeadIn:           1,
		LeadOut:          1,
		MinSpacing:       5,
		FallbackDuration: 30,
		FallbackScore:    0.3,
		SceneThreshold:   0.3,
	}
}

// WithIdealDuration returns a copy of c aiming for clips of roughly d seconds.
// d is clamped into [MinDuration, MaxDuration]; zero keeps the current ideal.
func (c Config) WithIdealDuration(d float64) Config {
	if d <= 0 {
		return c
	}
	c.IdealDuration = clamp(d, c.MinDuration, c.MaxDuration)
	return c
}

// ScenesFromTimestamps turns scene-change timestamps into padded intervals
// whose duration lies in [MinDuration, MaxDuration]. Intervals that cannot
// reach MinDuration inside the source are dropped.
func (c Config) ScenesFromTimestamps(timestamps []float64, total float64) []Scene {
	if total <= 0 {
		return nil
	}
	points := []float64{0}
	for _, t := range timestamps {
		if t <= points[len(points)-1] || t >= total {
			continue
		}
		points = append(points, t)
	}
	points = append(points, total)

	var scenes []Scene
	for i := 0; i+1 < len(points); i++ {
		start := math.Max(0, points[i]-c.LeadIn)
		end := math.Min(total, points[i+1]+c.LeadOut)

		if end-start > c.MaxDuration {
			end = start + c.MaxDuration
		}
		if end-start < c.MinDuration {
			end = start + c.MinDuration
			if end > total {
				end = total
				start = math.Max(0, total-c.MinDuration)
			}
		}
		if end-start < c.MinDuration {
			continue
		}
		scenes = append(scenes, newScene(start, end, 0))
	}
	return scenes
}

// ScoreScenes assigns each detected scene a score in [0,1]. Fallback scenes
// keep their fixed score.
func (c Config) ScoreScenes(scenes []Scene, total float64) []Scene {
	out := make([]Scene, len(scenes))
	for i, s := range scenes {
		if s.Fallback {
			s.Score = c.FallbackScore
			out[i] = s
			continue
		}

		score := 0.0
		if total > 0 {
			mid := (s.StartTime + s.EndTime) / 2 / total
			if mid >= 0.15 && mid <= 0.85 {
				score += 0.3
			}
			if mid >= 0.3 && mid <= 0.7 {
				score += 0.2
			}
		}
		if c.IdealDuration > 0 {
			score += 0.4 * math.Max(0, 1-math.Abs(s.Duration-c.IdealDuration)/c.IdealDuration)
		}
		if c.MaxDuration > 0 {
			score += 0.1 * math.Min(s.Duration/c.MaxDuration, 1)
		}
		s.Score = clamp(score, 0, 1)
		out[i] = s
	}
	return out
}

// SelectBestScenes greedily picks up to maxClips scenes by descending score,
// detected scenes ahead of fallback ones. A candidate is skipped when it
// overlaps, or comes within MinSpacing of, a scene already picked. The result
// is ordered by start time.
func (c Config) SelectBestScenes(scenes []Scene, maxClips int) []Scene {
	if maxClips <= 0 {
		return nil
	}
	ranked := append([]Scene(nil), scenes...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Fallback != b.Fallback {
			return !a.Fallback
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.StartTime < b.StartTime
	})

	var picked []Scene
	for _, cand := range ranked {
		if len(picked) >= maxClips {
			break
		}
		ok := true
		for _, p := range picked {
			if c.conflicts(cand, p) {
				ok = false
				break
			}
		}
		if ok {
			picked = append(picked, cand)
		}
	}

	sort.Slice(picked, func(i, j int) bool { return picked[i].StartTime < picked[j].StartTime })
	return picked
}

// CreateFallbackScenes spaces count windows evenly across the source. Each
// window sits centered in an equal slice of the timeline and is at most
// FallbackDuration long; count shrinks when the source cannot hold that many
// windows of MinDuration separated by MinSpacing.
func (c Config) CreateFallbackScenes(total float64, count int) []Scene {
	if total <= 0 || count <= 0 {
		return nil
	}
	if total < c.MinDuration {
		s := newScene(0, total, c.FallbackScore)
		s.Fallback = true
		return []Scene{s}
	}
	if fit := int(total / (c.MinDuration + c.MinSpacing)); fit < count {
		count = max(fit, 1)
	}

	slot := total / float64(count)
	window := math.Min(c.FallbackDuration, slot-c.MinSpacing)
	if window < c.MinDuration {
		window = math.Min(c.MinDuration, slot)
	}

	scenes := make([]Scene, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i)*slot + (slot-window)/2
		s := newScene(start, start+window, c.FallbackScore)
		s.Fallback = true
		scenes = append(scenes, s)
	}
	return scenes
}

func (c Config) conflicts(a, b Scene) bool {
	return a.StartTime < b.EndTime+c.MinSpacing && b.StartTime < a.EndTime+c.MinSpacing
}

func newScene(start, end, score float64) Scene {
	return Scene{
		StartTime: start,
		EndTime:   end,
		Duration:  end - start,
		Score:     score,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
