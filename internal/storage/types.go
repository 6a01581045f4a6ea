package storage

import (
	"encoding"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID           string   `msgpack:"id"`
	UserName     string   `msgpack:"userName"`
	Name         string   `msgpack:"name"`
	StatusText   string   `msgpack:"statusText"`
	AvatarURL    string   `msgpack:"avatarUrl"`
	Roles        []string `msgpack:"roles"`
	PasswordHash string   `msgpack:"passwordHash"`
	Status       string   `msgpack:"status"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBRoom struct {
	ID           string   `msgpack:"id"`
	Type         string   `msgpack:"t"`
	PRID         string   `msgpack:"prid"`
	Name         string   `msgpack:"name"`
	FName        string   `msgpack:"fname"`
	Description  string   `msgpack:"description"`
	Topic        string   `msgpack:"topic"`
	Announcement string   `msgpack:"announcement"`
	UIDs         []string `msgpack:"uids"`
	ReadOnly     bool     `msgpack:"ro"`
	Broadcast    bool     `msgpack:"broadcast"`
	Archived     bool     `msgpack:"archived"`
}

func (r *DBRoom) Key() []byte {
	return []byte(r.ID)
}

func (r *DBRoom) MarshalBinary() (data []byte, err error) {
	type alias DBRoom
	return msgpack.Marshal((*alias)(r))
}

func (r *DBRoom) UnmarshalBinary(data []byte) error {
	type alias DBRoom
	return msgpack.Unmarshal(data, (*alias)(r))
}

type DBMembership struct {
	RoomID string   `msgpack:"rid"`
	UserID string   `msgpack:"userId"`
	Roles  []string `msgpack:"roles"`
}

func (m *DBMembership) Key() []byte {
	return membershipKey(m.RoomID, m.UserID)
}

func (m *DBMembership) MarshalBinary() (data []byte, err error) {
	type alias DBMembership
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMembership) UnmarshalBinary(data []byte) error {
	type alias DBMembership
	return msgpack.Unmarshal(data, (*alias)(m))
}

func membershipKey(roomID, userID string) []byte {
	return []byte(roomID + "/" + userID)
}

type DBRole struct {
	ID          string `msgpack:"id"`
	Description string `msgpack:"description"`
}

func (r *DBRole) Key() []byte {
	return []byte(r.ID)
}

func (r *DBRole) MarshalBinary() (data []byte, err error) {
	type alias DBRole
	return msgpack.Marshal((*alias)(r))
}

func (r *DBRole) UnmarshalBinary(data []byte) error {
	type alias DBRole
	return msgpack.Unmarshal(data, (*alias)(r))
}

type DBPermission struct {
	ID    string   `msgpack:"id"`
	Roles []string `msgpack:"roles"`
}

func (p *DBPermission) Key() []byte {
	return []byte(p.ID)
}

func (p *DBPermission) MarshalBinary() (data []byte, err error) {
	type alias DBPermission
	return msgpack.Marshal((*alias)(p))
}

func (p *DBPermission) UnmarshalBinary(data []byte) error {
	type alias DBPermission
	return msgpack.Unmarshal(data, (*alias)(p))
}
