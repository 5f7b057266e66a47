package respond

import (
	"regexp"
)

var (
	// user:password@ in DSNs and archive URLs
	userinfoPasswordPattern = regexp.MustCompile(`://([^:/@\s]+):([^@\s]+)@`)

	// AWS access key IDs (long-term AKIA, temporary ASIA)
	awsAccessKeyPattern = regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`)

	// presigned S3 query parameters
	presignedParamPattern = regexp.MustCompile(`(?i)(X-Amz-(?:Signature|Credential|Security-Token))=[^&\s"]+`)

	// password=... in key/value DSNs
	kvPasswordPattern = regexp.MustCompile(`(?i)\bpassword=[^\s&]+`)
)

// SanitizeError returns err's message with credentials masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	msg = userinfoPasswordPattern.ReplaceAllString(msg, "://$1:****@")
	msg = kvPasswordPattern.ReplaceAllString(msg, "password=****")
	msg = awsAccessKeyPattern.ReplaceAllString(msg, "$1****")
	msg = presignedParamPattern.ReplaceAllString(msg, "$1=****")
	return msg
}
