package storage

import (
	"fmt"
	"time"

	"roominfo/internal/auth"
	"roominfo/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers       = []byte("users")
	bucketUserNames   = []byte("user_names")
	bucketRooms       = []byte("rooms")
	bucketMemberships = []byte("memberships")
	bucketRoles       = []byte("roles")
	bucketPermissions = []byte("permissions")
	bucketFiles       = []byte("files")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketUsers,
			bucketUserNames,
			bucketRooms,
			bucketMemberships,
			bucketRoles,
			bucketPermissions,
			bucketFiles,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// UpsertCredentials stores new or updated user credentials and keeps the username index current.
func (s *BboltStorage) UpsertCredentials(credentials auth.UserCredentials) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		names := tx.Bucket(bucketUserNames)

		if old := users.Get([]byte(credentials.ID)); old != nil {
			var prev DBUser
			if err := prev.UnmarshalBinary(old); err != nil {
				return err
			}
			if prev.UserName != credentials.UserName {
				if err := names.Delete([]byte(prev.UserName)); err != nil {
					return err
				}
			}
		}

		dbUser := &DBUser{
			ID:           credentials.ID,
			UserName:     credentials.UserName,
			Name:         credentials.Name,
			StatusText:   credentials.StatusText,
			AvatarURL:    credentials.AvatarURL,
			Roles:        credentials.Roles,
			PasswordHash: credentials.PasswordHash,
			Status:       string(credentials.Status),
		}

		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		if err := users.Put(dbUser.Key(), data); err != nil {
			return err
		}
		return names.Put([]byte(dbUser.UserName), dbUser.Key())
	})
}

// GetCredentials returns user credentials by user id.
func (s *BboltStorage) GetCredentials(userID string) (auth.UserCredentials, error) {
	var creds auth.UserCredentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		creds, err = getCredentials(tx, userID)
		return err
	})
	return creds, err
}

// GetCredentialsByName returns user credentials by username.
func (s *BboltStorage) GetCredentialsByName(userName string) (auth.UserCredentials, error) {
	var creds auth.UserCredentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketUserNames).Get([]byte(userName))
		if id == nil {
			return fmt.Errorf("user %q: %w", userName, models.ErrNotFound)
		}
		var err error
		creds, err = getCredentials(tx, string(id))
		return err
	})
	return creds, err
}

// ListUsers returns every user stored in the database.
func (s *BboltStorage) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, dbUser.toModel())
			return nil
		})
	})
	return users, err
}

func getCredentials(tx *bbolt.Tx, userID string) (auth.UserCredentials, error) {
	data := tx.Bucket(bucketUsers).Get([]byte(userID))
	if data == nil {
		return auth.UserCredentials{}, fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	var dbUser DBUser
	if err := dbUser.UnmarshalBinary(data); err != nil {
		return auth.UserCredentials{}, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return auth.UserCredentials{
		User:         dbUser.toModel(),
		PasswordHash: dbUser.PasswordHash,
	}, nil
}

func (u *DBUser) toModel() models.User {
	return models.User{
		ID:         u.ID,
		UserName:   u.UserName,
		Name:       u.Name,
		StatusText: u.StatusText,
		AvatarURL:  u.AvatarURL,
		Roles:      u.Roles,
		Status:     models.UserStatus(u.Status),
	}
}

// UpsertRoom saves room struct to the database.
func (s *BboltStorage) UpsertRoom(room models.Room) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbRoom := DBRoom{
			ID:           room.ID,
			Type:         string(room.Type),
			PRID:         room.PRID,
			Name:         room.Name,
			FName:        room.FName,
			Description:  room.Description,
			Topic:        room.Topic,
			Announcement: room.Announcement,
			UIDs:         room.UIDs,
			ReadOnly:     room.ReadOnly,
			Broadcast:    room.Broadcast,
			Archived:     room.Archived,
		}
		data, err := dbRoom.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRooms).Put(dbRoom.Key(), data)
	})
}

func (s *BboltStorage) GetRoom(roomID string) (models.Room, error) {
	var room models.Room
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRooms).Get([]byte(roomID))
		if data == nil {
			return fmt.Errorf("room %s: %w", roomID, models.ErrNotFound)
		}
		var dbRoom DBRoom
		if err := dbRoom.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("failed to unmarshal room: %w", err)
		}
		room = dbRoom.toModel()
		return nil
	})
	return room, err
}

// ListRooms returns all rooms stored in the database.
func (s *BboltStorage) ListRooms() ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRooms).ForEach(func(k, v []byte) error {
			var dbRoom DBRoom
			if err := dbRoom.UnmarshalBinary(v); err != nil {
				return err
			}
			rooms = append(rooms, dbRoom.toModel())
			return nil
		})
	})
	return rooms, err
}

func (r *DBRoom) toModel() models.Room {
	return models.Room{
		ID:           r.ID,
		Type:         models.RoomType(r.Type),
		PRID:         r.PRID,
		Name:         r.Name,
		FName:        r.FName,
		Description:  r.Description,
		Topic:        r.Topic,
		Announcement: r.Announcement,
		UIDs:         r.UIDs,
		ReadOnly:     r.ReadOnly,
		Broadcast:    r.Broadcast,
		Archived:     r.Archived,
	}
}

func (s *BboltStorage) UpsertMembership(m models.Membership) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbMembership := DBMembership{
			RoomID: m.RoomID,
			UserID: m.UserID,
			Roles:  m.Roles,
		}
		data, err := dbMembership.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMemberships).Put(dbMembership.Key(), data)
	})
}

func (s *BboltStorage) GetMembership(roomID, userID string) (models.Membership, error) {
	var m models.Membership
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMemberships).Get(membershipKey(roomID, userID))
		if data == nil {
			return fmt.Errorf("membership %s/%s: %w", roomID, userID, models.ErrNotFound)
		}
		var dbMembership DBMembership
		if err := dbMembership.UnmarshalBinary(data); err != nil {
			return err
		}
		m = models.Membership{
			RoomID: dbMembership.RoomID,
			UserID: dbMembership.UserID,
			Roles:  dbMembership.Roles,
		}
		return nil
	})
	return m, err
}

func (s *BboltStorage) UpsertRole(role models.Role) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbRole := DBRole{ID: role.ID, Description: role.Description}
		data, err := dbRole.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRoles).Put(dbRole.Key(), data)
	})
}

func (s *BboltStorage) GetRole(roleID string) (models.Role, error) {
	var role models.Role
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRoles).Get([]byte(roleID))
		if data == nil {
			return fmt.Errorf("role %s: %w", roleID, models.ErrNotFound)
		}
		var dbRole DBRole
		if err := dbRole.UnmarshalBinary(data); err != nil {
			return err
		}
		role = models.Role{ID: dbRole.ID, Description: dbRole.Description}
		return nil
	})
	return role, err
}

func (s *BboltStorage) UpsertPermission(p models.Permission) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbPermission := DBPermission{ID: p.ID, Roles: p.Roles}
		data, err := dbPermission.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPermissions).Put(dbPermission.Key(), data)
	})
}

func (s *BboltStorage) GetPermission(permissionID string) (models.Permission, error) {
	var p models.Permission
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPermissions).Get([]byte(permissionID))
		if data == nil {
			return fmt.Errorf("permission %s: %w", permissionID, models.ErrNotFound)
		}
		var dbPermission DBPermission
		if err := dbPermission.UnmarshalBinary(data); err != nil {
			return err
		}
		p = models.Permission{ID: dbPermission.ID, Roles: dbPermission.Roles}
		return nil
	})
	return p, err
}
