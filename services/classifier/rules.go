package classifier

import (
	"strings"

	"github.com/customeros/mailarchive/internal/enum"
)

type rule struct {
	label    enum.DocumentLabel
	keywords []string
}

// documentRules are scored in order; the first label wins a tie.
var documentRules = []rule{
	{enum.LabelInvoice, []string{"invoice", "bill", "payment due", "amount due", "total due", "tax invoice"}},
	{enum.LabelReceipt, []string{"receipt", "payment received", "thank you for your payment", "transaction"}},
	{enum.LabelStatement, []string{"statement", "account summary", "balance", "opening balance"}},
	{enum.LabelContract, []string{"contract", "agreement", "terms and conditions", "hereby agree"}},
}

// ClassifyByRules counts keyword hits per label over filename and text. It
// always returns a label from the fixed set.
func ClassifyByRules(text, filename string) enum.DocumentLabel {
	combined := strings.ToLower(filename + " " + text)
	best, bestScore := enum.LabelOther, 0
	for _, r := range documentRules {
		score := 0
		for _, kw := range r.keywords {
			if strings.Contains(combined, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = r.label, score
		}
	}
	return best
}

var emailRules = []struct {
	class    enum.EmailClassification
	keywords []string
}{
	{enum.EmailClassInvoice, []string{"invoice", "bill", "payment"}},
	{enum.EmailClassNewsletter, []string{"newsletter", "unsubscribe", "weekly digest"}},
	{enum.EmailClassShipping, []string{"shipped", "tracking", "delivery"}},
	{enum.EmailClassNotification, []string{"noreply", "no-reply", "notification", "alert"}},
}

func ClassifyEmailByRules(subject, sender, body string) enum.EmailClassification {
	combined := strings.ToLower(subject + " " + sender + " " + body)
	for _, r := range emailRules {
		for _, kw := range r.keywords {
			if strings.Contains(combined, kw) {
				return r.class
			}
		}
	}
	return enum.EmailClassOther
}
