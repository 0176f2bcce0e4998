package mesh

import "errors"

// Per-frame failure modes. None of these abort a run: the frame's bound is
// left missing and processing continues with the next frame.
var (
	ErrInsufficientMatches   = errors.New("insufficient matches")
	ErrRobustFitFailure      = errors.New("robust fit failed")
	ErrOpticalFlowDegenerate = errors.New("optical flow degenerate")
	ErrMissingFeatures       = errors.New("missing features")
	ErrMissingBound          = errors.New("missing bound")
)
