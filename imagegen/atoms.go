// Package imagegen resolves source images and turns prompts into product
// photos through Google Gemini, Imagen or OpenAI.
//
// atoms.go contains pure utility functions with no dependencies.
package imagegen

import (
	"net"
	"strings"
)

// referenceInstruction is prepended to the user's scene description whenever
// a product photo is sent along with the prompt.
const referenceInstruction = "Use the provided image as the main product. " +
	"Insert this exact product into a new scene according to the following description. " +
	"The result must be a realistic and natural image that does not look like a montage. " +
	"Do not alter the product's appearance, packaging or text. The description is: "

// WrapReferencePrompt returns the prompt sent alongside a reference image.
//
// Example:
//
//	WrapReferencePrompt("on a marble kitchen counter")
//	// "Use the provided image as the main product. ... The description is: on a marble kitchen counter"
func WrapReferencePrompt(prompt string) string {
	return referenceInstruction + strings.TrimSpace(prompt)
}

// safetyFinishReasons are the Gemini candidate finish reasons that mean the
// output was withheld by a content filter.
var safetyFinishReasons = map[string]bool{
	"SAFETY":                   true,
	"PROHIBITED_CONTENT":       true,
	"BLOCKLIST":                true,
	"SPII":                     true,
	"IMAGE_SAFETY":             true,
	"IMAGE_PROHIBITED_CONTENT": true,
}

// IsSafetyFinishReason reports whether a Gemini finish reason is a
// content-filter block.
func IsSafetyFinishReason(reason string) bool {
	return safetyFinishReasons[strings.ToUpper(reason)]
}

// IsBlockedPromptReason reports whether a prompt feedback block reason
// actually blocked the request.
func IsBlockedPromptReason(reason string) bool {
	switch strings.ToUpper(reason) {
	case "", "BLOCKED_REASON_UNSPECIFIED":
		return false
	default:
		return true
	}
}

// NormalizeMIME lowercases a Content-Type and strips its parameters.
//
// Example:
//
//	NormalizeMIME("Image/JPEG; charset=binary") // "image/jpeg"
func NormalizeMIME(contentType string) string {
	media := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(media, ";"); i != -1 {
		media = strings.TrimSpace(media[:i])
	}
	return media
}

// IsRestrictedIP reports whether ip is loopback, private, link-local,
// unspecified or multicast. The resolver refuses to fetch from such hosts
// unless private fetches are allowed.
func IsRestrictedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}

// truncateText shortens text to maxLen runes for log fields.
func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
