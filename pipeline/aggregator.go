package pipeline

import (
	"sort"

	"github.com/ghurfati/ghurfati/store"
)

// ProductMatch is one ranked catalog hit for a region. Title, category,
// price and currency are the values snapshot at match time, so later catalog
// edits do not change an already computed result.
type ProductMatch struct {
	Rank       int32   `json:"rank"`
	ProductID  string  `json:"product_id"`
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	Price      float64 `json:"price"`
	Currency   string  `json:"currency"`
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

// RegionResult pairs a detected region with its matches in rank order.
type RegionResult struct {
	RegionID string         `json:"region_id"`
	Idx      int32          `json:"idx"`
	Label    string         `json:"label"`
	Category string         `json:"category,omitempty"`
	X        int32          `json:"x"`
	Y        int32          `json:"y"`
	Width    int32          `json:"width"`
	Height   int32          `json:"height"`
	CropRef  string         `json:"crop_ref,omitempty"`
	Matches  []ProductMatch `json:"matches"`
}

// MatchResult is the aggregated outcome of a restyle job. It is rebuilt from
// persisted rows on every read, so repeated reads of a terminal job return
// identical payloads.
type MatchResult struct {
	JobID          string         `json:"job_id"`
	Status         string         `json:"status"`
	Style          string         `json:"style"`
	Strength       float64        `json:"strength"`
	RoomHint       string         `json:"room_hint,omitempty"`
	PhotoRef       string         `json:"photo_ref"`
	StyledImageRef string         `json:"styled_image_ref,omitempty"`
	Prompt         string         `json:"prompt,omitempty"`
	Regions        []RegionResult `json:"regions"`
	Unmatched      []string       `json:"unmatched,omitempty"`
	FailedStage    string         `json:"failed_stage,omitempty"`
	ErrorClass     string         `json:"error_class,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	CreatedTs      int64          `json:"created_ts"`
	UpdatedTs      int64          `json:"updated_ts"`
}

// Aggregate assembles a job result from persisted rows. Regions keep
// detection order, matches attach to their regions in rank order, and
// regions that matched nothing are listed in Unmatched. The function is
// pure: same rows in, same result out.
func Aggregate(job *store.Job, styled *store.StyledImage, regions []*store.Region, matches []*store.Match) *MatchResult {
	result := &MatchResult{
		JobID:        job.ID,
		Status:       string(job.Status),
		Style:        job.Style,
		Strength:     job.Strength,
		RoomHint:     job.RoomHint,
		PhotoRef:     job.PhotoRef,
		Regions:      make([]RegionResult, 0, len(regions)),
		FailedStage:  job.FailedStage,
		ErrorClass:   job.ErrorClass,
		ErrorMessage: job.ErrorMessage,
		CreatedTs:    job.CreatedTs,
		UpdatedTs:    job.UpdatedTs,
	}
	if styled != nil {
		result.StyledImageRef = styled.ImageRef
		result.Prompt = styled.Prompt
	}

	byRegion := make(map[string][]ProductMatch, len(regions))
	for _, m := range matches {
		byRegion[m.RegionID] = append(byRegion[m.RegionID], ProductMatch{
			Rank:       m.Rank,
			ProductID:  m.ProductID,
			Title:      m.Title,
			Category:   m.Category,
			Price:      m.Price,
			Currency:   m.Currency,
			Score:      m.Score,
			Similarity: m.Similarity,
		})
	}
	for _, hits := range byRegion {
		sort.Slice(hits, func(i, j int) bool { return hits[i].Rank < hits[j].Rank })
	}

	ordered := make([]*store.Region, len(regions))
	copy(ordered, regions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Idx < ordered[j].Idx })

	for _, r := range ordered {
		hits := byRegion[r.ID]
		if hits == nil {
			hits = []ProductMatch{}
		}
		if len(hits) == 0 {
			result.Unmatched = append(result.Unmatched, r.ID)
		}
		result.Regions = append(result.Regions, RegionResult{
			RegionID: r.ID,
			Idx:      r.Idx,
			Label:    r.Label,
			Category: r.Category,
			X:        r.X,
			Y:        r.Y,
			Width:    r.Width,
			Height:   r.Height,
			CropRef:  r.CropRef,
			Matches:  hits,
		})
	}
	return result
}
