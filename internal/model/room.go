package model

// PrivateRoomName derives the room name for a direct conversation between
// two connection ids. The ids are sorted so both participants compute the
// same name regardless of who initiates.
func PrivateRoomName(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "private-" + a + "-" + b
}
