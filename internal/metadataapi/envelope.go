package metadataapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/metagraph/internal/archive"
)

const (
	soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	metadataNS     = "http://soap.sforce.com/2006/04/metadata"
)

// authFaultCodes are the provider fault codes that mean the session is bad.
var authFaultCodes = []string{"INVALID_SESSION_ID", "INVALID_LOGIN", "INVALID_AUTH_HEADER"}

const (
	expiredLocatorCode = "INVALID_LOCATOR"
	malformedCode      = "MALFORMED_RESPONSE"
)

// newEnvelope starts a SOAP 1.1 envelope with the session header set and
// returns the document and its body element.
func newEnvelope(sessionID string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("soapenv:Envelope")
	env.CreateAttr("xmlns:soapenv", soapEnvelopeNS)
	env.CreateAttr("xmlns:met", metadataNS)

	header := env.CreateElement("soapenv:Header")
	header.CreateElement("met:SessionHeader").CreateElement("met:sessionId").SetText(sessionID)

	return doc, env.CreateElement("soapenv:Body")
}

// buildRetrieve renders an unpackaged retrieve of every member of each type.
func buildRetrieve(sessionID, apiVersion string, types []string) ([]byte, error) {
	doc, body := newEnvelope(sessionID)
	req := body.CreateElement("met:retrieve").CreateElement("met:retrieveRequest")
	req.CreateElement("met:apiVersion").SetText(apiVersion)
	req.CreateElement("met:singlePackage").SetText("true")

	pkg := req.CreateElement("met:unpackaged")
	for _, t := range types {
		el := pkg.CreateElement("met:types")
		el.CreateElement("met:members").SetText("*")
		el.CreateElement("met:name").SetText(t)
	}
	pkg.CreateElement("met:version").SetText(apiVersion)

	return doc.WriteToBytes()
}

func buildCheckStatus(sessionID, asyncID string) ([]byte, error) {
	doc, body := newEnvelope(sessionID)
	check := body.CreateElement("met:checkRetrieveStatus")
	check.CreateElement("met:asyncProcessId").SetText(asyncID)
	check.CreateElement("met:includeZip").SetText("true")
	return doc.WriteToBytes()
}

// RetrieveHandle identifies a submitted retrieve job.
type RetrieveHandle struct {
	AsyncID string
	Done    bool
	State   string
}

// RetrieveStatus is one checkRetrieveStatus answer. Archive holds the decoded
// zip once Done is set.
type RetrieveStatus struct {
	Done     bool
	State    string
	Success  bool
	Messages []string
	Archive  []byte
}

// Err converts a finished but unsuccessful retrieve into a permanent fault.
func (s RetrieveStatus) Err() error {
	if !s.Done || s.Success {
		return nil
	}
	msg := strings.Join(s.Messages, "; ")
	if msg == "" {
		msg = "retrieve operation was not successful"
	}
	return &RemoteFault{Code: "RETRIEVE_FAILED", Message: msg, Permanent: true}
}

// parseEnvelope reads a SOAP response and returns its result element, or the
// typed error the response represents.
func parseEnvelope(data []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &RemoteFault{Code: malformedCode, Message: fmt.Sprintf("failed to parse SOAP response: %v", err)}
	}
	root := doc.Root()
	if root == nil {
		return nil, &RemoteFault{Code: malformedCode, Message: "failed to parse SOAP response: empty document"}
	}
	if fault := findLocal(root, "Fault"); fault != nil {
		return nil, faultError(fault)
	}
	result := findLocal(root, "result")
	if result == nil {
		return nil, &RemoteFault{Code: malformedCode, Message: "response has no result element", Permanent: true}
	}
	return result, nil
}

// faultError maps a SOAP Fault element onto the client's error types.
func faultError(fault *etree.Element) error {
	code := stripPrefix(localText(fault, "faultcode"))
	msg := localText(fault, "faultstring")
	if detail := localText(fault, "exceptionCode"); detail != "" && code == "" {
		code = detail
	}

	for _, c := range authFaultCodes {
		if strings.Contains(code, c) || strings.Contains(msg, c) {
			return &AuthenticationError{Code: c, Message: msg}
		}
	}
	if strings.Contains(code, expiredLocatorCode) || strings.Contains(msg, expiredLocatorCode) {
		return &ExpiredResultError{}
	}
	if msg == "" {
		msg = "unknown SOAP fault"
	}
	return &RemoteFault{Code: code, Message: msg}
}

func parseHandle(result *etree.Element) (RetrieveHandle, error) {
	h := RetrieveHandle{
		AsyncID: localText(result, "id"),
		Done:    parseBool(localText(result, "done")),
		State:   localText(result, "state"),
	}
	if h.AsyncID == "" {
		return RetrieveHandle{}, &RemoteFault{Code: malformedCode, Message: "no async id found in response", Permanent: true}
	}
	return h, nil
}

func parseStatus(result *etree.Element) (RetrieveStatus, error) {
	st := RetrieveStatus{
		Done:    parseBool(localText(result, "done")),
		State:   localText(result, "state"),
		Success: parseBool(localText(result, "success")),
	}
	if status := localText(result, "status"); status != "" {
		st.State = status
	}
	for _, ch := range result.ChildElements() {
		if ch.Tag != "messages" {
			continue
		}
		for _, tag := range []string{"problem", "message"} {
			if text := localText(ch, tag); text != "" {
				st.Messages = append(st.Messages, text)
			}
		}
	}
	if !st.Done || !st.Success {
		return st, nil
	}

	encoded := strings.Join(strings.Fields(localText(result, "zipFile")), "")
	if encoded == "" {
		return st, &archive.ArchiveError{Op: "decode", Err: errors.New("no zip file found in response")}
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return st, &archive.ArchiveError{Op: "decode", Err: err}
	}
	st.Archive = data
	return st, nil
}

// findLocal returns the first element in document order whose local name is
// tag, regardless of its namespace prefix.
func findLocal(e *etree.Element, tag string) *etree.Element {
	if e.Tag == tag {
		return e
	}
	for _, ch := range e.ChildElements() {
		if found := findLocal(ch, tag); found != nil {
			return found
		}
	}
	return nil
}

// localText returns the trimmed text of the named child of e. Direct children
// win over deeper descendants.
func localText(e *etree.Element, tag string) string {
	children := e.ChildElements()
	for _, ch := range children {
		if ch.Tag == tag {
			return strings.TrimSpace(ch.Text())
		}
	}
	for _, ch := range children {
		if found := findLocal(ch, tag); found != nil {
			return strings.TrimSpace(found.Text())
		}
	}
	return ""
}

func stripPrefix(code string) string {
	if _, local, ok := strings.Cut(code, ":"); ok {
		return local
	}
	return code
}

func parseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}
