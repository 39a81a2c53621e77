// Privilege sets

package accesstoken

// Privileges of the RTC (real-time media transport) service
const (
	PrivilegeJoinChannel        uint16 = 1
	PrivilegePublishAudioStream uint16 = 2
	PrivilegePublishVideoStream uint16 = 3
	PrivilegePublishDataStream  uint16 = 4
)

// Privileges of the RTM (real-time messaging) service
const (
	PrivilegeLogin uint16 = 1
)

// Gets the RTC privileges granted to a user.
// Everyone joins, publishers also publish audio, video and data.
func RtcPrivileges(publisher bool) []uint16 {
	if !publisher {
		return []uint16{PrivilegeJoinChannel}
	}

	return []uint16{
		PrivilegeJoinChannel,
		PrivilegePublishAudioStream,
		PrivilegePublishVideoStream,
		PrivilegePublishDataStream,
	}
}

// Set of privileges of a service.
// Maps the privilege code to its expiration (Unix seconds)
type PrivilegeSet map[uint16]uint32

// Creates an empty privilege set
func NewPrivilegeSet() PrivilegeSet {
	return make(PrivilegeSet)
}

// Adds a privilege, overwriting the expiration if already present
func (ps PrivilegeSet) Add(code uint16, expireAt uint32) {
	ps[code] = expireAt
}

// Checks if the set contains a privilege
func (ps PrivilegeSet) Has(code uint16) bool {
	_, ok := ps[code]
	return ok
}

// Gets the privilege codes, in the order they are serialized
func (ps PrivilegeSet) Codes() []uint16 {
	return sortedPrivilegeKeys(ps)
}
