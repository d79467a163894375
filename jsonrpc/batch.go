package jsonrpc

//Batch is an ordered sequence of messages decoded from one HTTP body
//(spec.md section 3). A single, non-batched POST body decodes to a Batch of
//length 1.
type Batch []RawMessage

//HasRequests reports whether at least one message has both method and id
//(spec.md section 4.1 step 7).
func (b Batch) HasRequests() bool {
	for _, msg := range b {
		if msg.IsRequest() {
			return true
		}
	}
	return false
}

//OnlyNotificationsOrResponses reports whether every message is either a
//notification or a response (spec.md section 4.1 step 7).
func (b Batch) OnlyNotificationsOrResponses() bool {
	for _, msg := range b {
		if !msg.IsNotification() && !msg.IsResponse() {
			return false
		}
	}
	return true
}

//HasInitialize reports whether any message in the batch is an initialize request.
func (b Batch) HasInitialize() bool {
	for _, msg := range b {
		if msg.IsInitializeRequest() {
			return true
		}
	}
	return false
}

//Requests returns the subset of messages that are requests, preserving order.
func (b Batch) Requests() []RawMessage {
	var out []RawMessage
	for _, msg := range b {
		if msg.IsRequest() {
			out = append(out, msg)
		}
	}
	return out
}
