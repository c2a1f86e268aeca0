package codec

import (
	"regexp"
	"strings"

	"github.com/jeeves-cluster-organization/eventbus/errs"
)

// Module is the prefix every derived channel name carries, mirroring
// the Python package name pymq.core.fullname() folds into a type's
// qualified name.
var Module = "eventbus"

// ChannelOf derives the canonical <module>.<qualified-type-name>
// channel for a registered type T. T must have been registered once
// with Register[T] (typically in an init() func) or this panics —
// an unregistered payload type is a programming error, not a runtime
// condition to recover from.
func ChannelOf[T any]() string {
	name, ok := NameOf(*new(T))
	if !ok {
		t := typeOf[T]()
		panic("eventbus/codec: type " + t.String() + " was never registered with codec.Register")
	}
	return Module + "." + name
}

// ChannelOfValue is the dynamic counterpart of ChannelOf, used when
// the static type parameter isn't available (e.g. resolving the
// channel for an RPC function's registered name).
func ChannelOfValue(v any) (string, bool) {
	name, ok := NameOf(v)
	if !ok {
		return "", false
	}
	return Module + "." + name, true
}

// ChannelOfMethod derives <module>.<owner>.<method>, the scheme used
// for RPC stubs bound to a receiver's method (e.g. exposing obj.Echo
// rather than a free function).
func ChannelOfMethod(ownerTypeName, methodName string) string {
	return Module + "." + ownerTypeName + "." + methodName
}

var topicNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-.]{1,256}$`)

// ValidateTopicName enforces the charset/length every transport must
// accept unencoded.
func ValidateTopicName(name string) error {
	if !topicNamePattern.MatchString(name) {
		return errs.NewInvalidTopicNameError(name)
	}
	return nil
}

// encodeReplacements/decodeReplacements implement the inverse
// EncodeName/DecodeName pair recommended for adapters whose transport
// restricts the channel charset more than ValidateTopicName allows
// (e.g. no literal '*', '/', '.' or ':').
var encodeReplacements = []struct{ from, to string }{
	{"*", "_WCD_"},
	{"/", "_FWS_"},
	{".", "_DOT_"},
	{":", "_COL_"},
}

// EncodeName maps a channel name into a restricted-charset transport's
// key space. It is pure and total; it is invertible for names that do
// not already contain one of the markers (a literal "_DOT_" in the
// input decodes back as ".").
func EncodeName(name string) string {
	out := name
	for _, r := range encodeReplacements {
		out = strings.ReplaceAll(out, r.from, r.to)
	}
	return out
}

// DecodeName inverts EncodeName, undoing the markers in the reverse
// order they were applied. No marker contains a substituted character,
// so each replacement is independent of the others.
func DecodeName(encoded string) string {
	out := encoded
	for i := len(encodeReplacements) - 1; i >= 0; i-- {
		r := encodeReplacements[i]
		out = strings.ReplaceAll(out, r.to, r.from)
	}
	return out
}
