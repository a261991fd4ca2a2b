package models

// Class names.
const (
	ClassAsset              = "Asset"
	ClassCategoryAssignment = "CategoryAssignment"
	ClassUser               = "_User"
	ClassUserProfile        = "UserProfile"
	ClassSession            = "_Session"
	ClassReview             = "Review"
)

// Field names.
const (
	FieldStatus        = "status"
	FieldHistory       = "history"
	FieldName          = "name"
	FieldAssignedTo    = "assignedTo"
	FieldMasterAssetID = "masterAssetID"
	FieldProfile       = "profile"
	FieldUsername      = "username"
	FieldEmail         = "email"
	FieldPassword      = "password"
	FieldSessionToken  = "sessionToken"
	FieldUser          = "user"
	FieldExpiresAt     = "expiresAt"
	FieldMovie         = "movie"
	FieldStars         = "stars"
)

// UserProfile holds the personal names attached to a user.
type UserProfile struct {
	ObjectID  string `json:"objectId,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// User is the typed view of a _User record.
type User struct {
	ObjectID     string       `json:"objectId"`
	Username     string       `json:"username,omitempty"`
	Email        string       `json:"email,omitempty"`
	Name         string       `json:"name,omitempty"`
	SessionToken string       `json:"sessionToken,omitempty"`
	Profile      *UserProfile `json:"profile,omitempty"`
}

// UserFromDocument decodes a _User record.
func UserFromDocument(doc Document) (User, error) {
	var u User
	if err := doc.Decode(&u); err != nil {
		return User{}, err
	}

	if u.ObjectID == "" {
		return User{}, ErrMissingObjectID
	}

	return u, nil
}

// DisplayName returns name, falling back to username.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}

	return u.Username
}

// FullName returns "First Last" from the user's profile. ok is false when the
// profile was not loaded or carries no names.
func (u User) FullName() (string, bool) {
	if u.Profile == nil || (u.Profile.FirstName == "" && u.Profile.LastName == "") {
		return "", false
	}

	return u.Profile.FirstName + " " + u.Profile.LastName, true
}

// Actor returns the history identity for u; a nil user yields empty strings.
func (u *User) Actor() HistoryUser {
	if u == nil {
		return HistoryUser{}
	}

	return HistoryUser{Name: u.DisplayName(), ObjectID: u.ObjectID}
}

// Auth selects the privilege a store call runs with.
type Auth struct {
	Master       bool
	SessionToken string
}

// MasterKey returns master privilege.
func MasterKey() Auth { return Auth{Master: true} }

// Session returns the privilege of the user owning token.
func Session(token string) Auth { return Auth{SessionToken: token} }
