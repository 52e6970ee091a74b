package sedex

import (
	"encoding/xml"
	"io"
	"os"

	"github.com/lwgs/searchindex-client/pkg/model"
)

// Receipt status codes per the Sedex transport: 100 confirms delivery,
// everything else reports a transport error.
const StatusCodeDelivered = 100

// Receipt is the envelope receipt the Sedex adapter drops into the receipt
// directory for every outbound message. Unknown elements are ignored.
type Receipt struct {
	XMLName     xml.Name `xml:"receipt"`
	EventDate   string   `xml:"eventDate"`
	StatusCode  int      `xml:"statusCode"`
	StatusInfo  string   `xml:"statusInfo"`
	MessageID   string   `xml:"messageId"`
	MessageType int      `xml:"messageType"`
	SenderID    string   `xml:"senderId"`
	RecipientID string   `xml:"recipientId"`
}

// MessageState maps the transport status onto the SedexMessage lifecycle.
func (r *Receipt) MessageState() model.SedexMessageState {
	if r.StatusCode == StatusCodeDelivered {
		return model.SedexMessageSuccessful
	}
	return model.SedexMessageFailed
}

// ReadReceipt decodes a receipt document.
func ReadReceipt(reader io.Reader) (*Receipt, error) {
	var receipt Receipt
	decoder := xml.NewDecoder(reader)
	if err := decoder.Decode(&receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// ReadReceiptFromFile decodes a receipt file.
func ReadReceiptFromFile(path string) (*Receipt, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadReceipt(file)
}
