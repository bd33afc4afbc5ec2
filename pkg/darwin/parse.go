package darwin

import (
	"bytes"
	"fmt"

	"github.com/ironswallow/ironswallow/pkg/darwin/xmlparse"
)

// Decode profile for Push Port documents: update and snapshot branches
// hold heterogeneous record lists, as do schedules, status reports,
// station messages and the reference reason tables. Station message
// bodies carry embedded HTML that is folded back into text.
var (
	darwinListPaths = []string{
		"Pport.uR",
		"Pport.uR.schedule",
		"Pport.uR.TS",
		"Pport.uR.OW",
		"Pport.sR",
		"Pport.sR.schedule",
		"Pport.sR.TS",
		"Pport.sR.OW",
		"PportTimetableRef",
		"PportTimetableRef.LateRunningReasons",
		"PportTimetableRef.CancellationReasons",
	}

	darwinDetokenise = []string{
		"Pport.uR.OW.Msg",
		"Pport.sR.OW.Msg",
	}
)

// NewParser returns a decoder configured for Push Port documents.
func NewParser() *xmlparse.Parser {
	return xmlparse.New(xmlparse.Config{
		ListPaths:       darwinListPaths,
		Detokenise:      darwinDetokenise,
		StripWhitespace: true,
		IncludeTags:     true,
	})
}

// ParseFrame decodes one XML frame into its document root.
func ParseFrame(p *xmlparse.Parser, frame []byte) (*xmlparse.Node, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	return p.Parse(bytes.NewReader(frame))
}

// UpdateBranch selects the update records of a Pport document: the uR
// branch when present, the sR branch otherwise. It returns nil for
// documents carrying neither (reference files route elsewhere).
func UpdateBranch(doc *xmlparse.Node) *xmlparse.Node {
	pport := doc.Child("Pport")
	if pport == nil {
		return nil
	}
	if ur := pport.Child("uR"); ur != nil {
		return ur
	}
	return pport.Child("sR")
}

// TimetableRef selects the root of a reference document, or nil.
func TimetableRef(doc *xmlparse.Node) *xmlparse.Node {
	return doc.Child("PportTimetableRef")
}
