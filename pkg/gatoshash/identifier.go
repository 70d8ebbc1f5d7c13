package gatoshash

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/gatos-project/gatos/pkg/gatoserr"
)

// identifierSegmentChars reports whether r is valid inside one identifier
// segment: letters, digits, '-', '_'. Shared by journal ns/actor and
// message-plane topic/group/consumer-group validation (spec §4.4, §4.5) —
// all of these end up formatted directly into a Git ref name, so rejecting
// anything but this narrow alphabet is security-critical, not cosmetic.
func identifierSegmentChars(r rune) bool {
	return r == '-' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// validateIdentifierSegment checks one '/'-free path segment against
// length bounds and the shared alphabet, additionally rejecting the
// ref-traversal special-cases "." and "..".
func validateIdentifierSegment(kind string, s string, minLen, maxLen int, sentinel error) error {
	if s == "." || s == ".." {
		return fmt.Errorf("%w: %s %q is a reserved path segment", sentinel, kind, s)
	}
	if len(s) < minLen || len(s) > maxLen {
		return fmt.Errorf("%w: %s length must be %d..=%d, got %d", sentinel, kind, minLen, maxLen, len(s))
	}
	for _, r := range s {
		if !identifierSegmentChars(r) {
			return fmt.Errorf("%w: %s contains disallowed character %q", sentinel, kind, r)
		}
	}
	return nil
}

// ValidateNamespace checks a journal namespace: 1..=64 chars, the shared
// identifier alphabet, no '/' '\\' '.' '..' or ref-metacharacters
// (spec §4.4 — "security-critical to prevent ref injection").
func ValidateNamespace(ns string) error {
	if strings.ContainsAny(ns, `/\:*?[]~^@{}`) {
		return fmt.Errorf("%w: namespace %q contains a ref metacharacter", gatoserr.ErrInvalidNamespace, ns)
	}
	return validateIdentifierSegment("namespace", ns, 1, 64, gatoserr.ErrInvalidNamespace)
}

// ValidateActor checks a journal actor: 1..=128 chars, same alphabet and
// metacharacter rejection as ValidateNamespace.
func ValidateActor(actor string) error {
	if strings.ContainsAny(actor, `/\:*?[]~^@{}`) {
		return fmt.Errorf("%w: actor %q contains a ref metacharacter", gatoserr.ErrInvalidActor, actor)
	}
	return validateIdentifierSegment("actor", actor, 1, 128, gatoserr.ErrInvalidActor)
}

// ValidateGroup checks a consumer-group name using the same rules as a
// topic segment (spec §4.5 checkpoint refs embed the group verbatim).
func ValidateGroup(group string) error {
	if strings.ContainsAny(group, `/\:*?[]~^@{}`) {
		return fmt.Errorf("%w: group %q contains a ref metacharacter", gatoserr.ErrInvalidGroup, group)
	}
	return validateIdentifierSegment("group", group, 1, 128, gatoserr.ErrInvalidGroup)
}

// ValidateTopic checks a TopicRef name: one or more '/'-separated
// segments, each segment alphanumeric plus '-' '_'; empty, '.', '..'
// segments rejected (spec §3).
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic name must not be empty", gatoserr.ErrInvalidTopic)
	}
	segments := strings.Split(topic, "/")
	for _, seg := range segments {
		if err := validateIdentifierSegment("topic segment", seg, 1, 128, gatoserr.ErrInvalidTopic); err != nil {
			return err
		}
	}
	return nil
}
