package classifier

import (
	"bytes"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/customeros/mailarchive/internal/enum"
)

const SourceHeaders = "headers"

var bounceSubjects = []string{
	"mail delivery failure",
	"undelivered mail returned to sender",
	"delivery status notification",
	"undeliverable",
	"delivery failure",
	"failure notice",
	"returned mail",
}

// headerSignals reads delivery headers that settle the email class without
// looking at content. automated is set for bounces and auto-replies, bulk for
// list traffic; reason names the header that matched.
type headerSignals struct {
	automated bool
	bulk      bool
	reason    string
}

func readHeaderSignals(raw []byte, subject, from string) headerSignals {
	if isBounce, reason := bounceSignal(subject, from); isBounce {
		return headerSignals{automated: true, reason: reason}
	}
	if len(raw) == 0 {
		return headerSignals{}
	}
	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return headerSignals{}
	}
	header := envelope.GetHeader

	switch {
	case header("X-Failed-Recipients") != "":
		return headerSignals{automated: true, reason: "X-Failed-Recipients"}
	case strings.EqualFold(header("Content-Description"), "delivery report"):
		return headerSignals{automated: true, reason: "Content-Description: delivery report"}
	case header("X-Autoreply") != "" || header("X-Autorespond") != "":
		return headerSignals{automated: true, reason: "X-Autoreply"}
	case strings.EqualFold(header("Precedence"), "auto_reply"):
		return headerSignals{automated: true, reason: "Precedence: auto_reply"}
	case strings.HasPrefix(strings.ToLower(header("Auto-Submitted")), "auto-replied"):
		return headerSignals{automated: true, reason: "Auto-Submitted"}
	}

	switch {
	case header("List-Unsubscribe") != "":
		return headerSignals{bulk: true, reason: "List-Unsubscribe"}
	case strings.EqualFold(header("Precedence"), "bulk"), strings.EqualFold(header("Precedence"), "list"):
		return headerSignals{bulk: true, reason: "Precedence: " + strings.ToLower(header("Precedence"))}
	}
	return headerSignals{}
}

func bounceSignal(subject, from string) (bool, string) {
	if strings.Contains(strings.ToLower(from), "mailer-daemon") {
		return true, "From: mailer-daemon"
	}
	if strings.HasPrefix(strings.ToLower(from), "postmaster@") {
		return true, "From: postmaster"
	}
	lower := strings.ToLower(subject)
	for _, phrase := range bounceSubjects {
		if strings.Contains(lower, phrase) {
			return true, "Subject: " + phrase
		}
	}
	return false, ""
}

// refine lets list headers upgrade an unspecific class. Invoices and
// shipping notices often carry List-Unsubscribe too, so those stay.
func (s headerSignals) refine(class enum.EmailClassification) (enum.EmailClassification, bool) {
	if s.bulk && class == enum.EmailClassOther {
		return enum.EmailClassNewsletter, true
	}
	return class, false
}
