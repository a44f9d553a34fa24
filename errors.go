package dlpscan

import "errors"

var (
	// ErrJobNotFound is returned when a job ID does not exist.
	ErrJobNotFound = errors.New("dlpscan: job not found")

	// ErrSITNotFound is returned when a SIT ID does not exist.
	ErrSITNotFound = errors.New("dlpscan: sit not found")

	// ErrRulepackNotFound is returned when a rulepack ID does not exist.
	ErrRulepackNotFound = errors.New("dlpscan: rulepack not found")

	// ErrKeywordListNotFound is returned when a keyword list ID does not exist.
	ErrKeywordListNotFound = errors.New("dlpscan: keyword list not found")

	// ErrUnknownOption is returned when a scan submission carries an
	// unrecognized option key.
	ErrUnknownOption = errors.New("dlpscan: unknown scan option")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("dlpscan: invalid configuration")
)
