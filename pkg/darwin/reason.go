package darwin

import "github.com/ironswallow/ironswallow/pkg/darwin/xmlparse"

// Reason is the structured rendering of a cancelReason or LateReason
// element, stored as JSON on the schedule row.
type Reason struct {
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Location *LocationOutline `json:"location"`
	Near     bool             `json:"near"`
}

// BuildReason renders a reason element against the reference snapshot.
// cancelReason codes resolve against cancellation texts, everything
// else against late-running texts.
func BuildReason(ref *Reference, node *xmlparse.Node) Reason {
	code := node.Text()
	typ := "D"
	if node.Tag() == "cancelReason" {
		typ = "C"
	}

	reason := Reason{
		Code:    code,
		Message: ref.Reason(code, typ),
		Near:    node.Attr("near") != "",
	}
	if loc, ok := ref.Location(node.Attr("tiploc")); ok {
		outline := loc.Outline()
		reason.Location = &outline
	}
	return reason
}
