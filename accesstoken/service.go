// Service descriptors

package accesstoken

import (
	"fmt"
	"strconv"
)

// Service types
const (
	ServiceTypeRtc uint16 = 1
	ServiceTypeRtm uint16 = 2
)

// Service descriptor, embedded in an access token.
// Serialized as [type:uint16][privileges][type specific fields]
type Service interface {
	// Gets the service type
	Type() uint16

	// Adds a privilege, expiring at expireAt (Unix seconds)
	AddPrivilege(code uint16, expireAt uint32)

	// Gets the privileges of the service
	Privileges() PrivilegeSet

	// Serializes the service
	Pack() []byte

	// Reads the service privileges and fields.
	// The type tag must be already consumed.
	unpack(r *ByteReader) error
}

// Common part of every service
type serviceBase struct {
	serviceType uint16
	privileges  PrivilegeSet
}

func (s *serviceBase) Type() uint16 {
	return s.serviceType
}

func (s *serviceBase) AddPrivilege(code uint16, expireAt uint32) {
	s.privileges.Add(code, expireAt)
}

func (s *serviceBase) Privileges() PrivilegeSet {
	return s.privileges
}

func (s *serviceBase) packHeader(buf *ByteBuffer) {
	buf.PutUint16(s.serviceType).PutPrivileges(s.privileges)
}

func (s *serviceBase) unpackPrivileges(r *ByteReader) error {
	privileges, err := r.GetPrivileges()

	if err != nil {
		return err
	}

	s.privileges = privileges

	return nil
}

// RTC service: joining and publishing in a media channel
type ServiceRtc struct {
	serviceBase

	// Channel name
	ChannelName string

	// User ID, as decimal text. Empty means any user ID
	Uid string
}

// Creates a RTC service for a numeric user ID.
// Uid 0 is encoded as an empty string (any user ID).
func NewServiceRtc(channelName string, uid uint32) *ServiceRtc {
	return NewServiceRtcAccount(channelName, UidToString(uid))
}

// Creates a RTC service for a string user account
func NewServiceRtcAccount(channelName string, account string) *ServiceRtc {
	return &ServiceRtc{
		serviceBase: serviceBase{
			serviceType: ServiceTypeRtc,
			privileges:  NewPrivilegeSet(),
		},
		ChannelName: channelName,
		Uid:         account,
	}
}

func (s *ServiceRtc) Pack() []byte {
	buf := NewByteBuffer()

	s.packHeader(buf)
	buf.PutString(s.ChannelName).PutString(s.Uid)

	return buf.Pack()
}

func (s *ServiceRtc) unpack(r *ByteReader) error {
	err := s.unpackPrivileges(r)

	if err != nil {
		return err
	}

	s.ChannelName, err = r.GetString()

	if err != nil {
		return err
	}

	s.Uid, err = r.GetString()

	return err
}

// RTM service: login into the messaging system
type ServiceRtm struct {
	serviceBase

	// Messaging user ID
	UserId string
}

// Creates a RTM service
func NewServiceRtm(userId string) *ServiceRtm {
	return &ServiceRtm{
		serviceBase: serviceBase{
			serviceType: ServiceTypeRtm,
			privileges:  NewPrivilegeSet(),
		},
		UserId: userId,
	}
}

func (s *ServiceRtm) Pack() []byte {
	buf := NewByteBuffer()

	s.packHeader(buf)
	buf.PutString(s.UserId)

	return buf.Pack()
}

func (s *ServiceRtm) unpack(r *ByteReader) error {
	err := s.unpackPrivileges(r)

	if err != nil {
		return err
	}

	s.UserId, err = r.GetString()

	return err
}

// Creates an empty service for a type tag
func newServiceForType(serviceType uint16) (Service, error) {
	switch serviceType {
	case ServiceTypeRtc:
		return NewServiceRtcAccount("", ""), nil
	case ServiceTypeRtm:
		return NewServiceRtm(""), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownService, serviceType)
	}
}

// Reads a service from the reader, including its type tag
func readService(r *ByteReader) (Service, error) {
	serviceType, err := r.GetUint16()

	if err != nil {
		return nil, err
	}

	s, err := newServiceForType(serviceType)

	if err != nil {
		return nil, err
	}

	err = s.unpack(r)

	if err != nil {
		return nil, err
	}

	return s, nil
}

// Decodes a service serialized with Pack
func UnpackService(data []byte) (Service, error) {
	r := NewByteReader(data)

	s, err := readService(r)

	if err != nil {
		return nil, err
	}

	if r.Remaining() > 0 {
		return nil, ErrTrailingData
	}

	return s, nil
}

// Converts numeric user ID to the text stored in tokens.
// 0 means any user ID, and it is stored as an empty string.
func UidToString(uid uint32) string {
	if uid == 0 {
		return ""
	}

	return strconv.FormatUint(uint64(uid), 10)
}
