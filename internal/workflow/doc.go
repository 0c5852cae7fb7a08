// Package workflow chooses, builds, and validates video generation
// strategies.
//
// Five mutually-exclusive strategies exist: interpolation (render between
// two keyframes), ingredients (compose from subject reference images),
// timestamp (timed dialogue segments concatenated into the prompt),
// image_to_video (animate a single starting frame), and text_to_video
// (prompt only, optional style references).
//
// # Selection
//
// A Selector maps SceneFacts to a Classification. The rule selector computes
// the structurally supported set from available assets and resolves ties
// with the declared technique, then the configured default. The reasoning
// selector applies only when interpolation and ingredients are both
// supported: it scores the scene against a five-point rubric and picks
// interpolation at three or more hits. Forced modes always return their
// strategy and attach a warning when structural support is absent; the
// validator, not the selector, rejects those requests.
//
// Every classification carries its reason and warnings. A choice is never
// made silently.
//
// # Build and validate
//
// Build resolves dependency outputs into a strategy-specific Request and
// fails with a missing-asset error when a required output does not exist.
// Validate re-derives the strategy's constraints against the built request:
// mutually-exclusive fields, the fixed interpolation duration set, reference
// count limits, and timestamp segment sums. Validation failures are
// permanent; retrying identical parameters cannot succeed.
package workflow
