package store

import (
	"cloud.google.com/go/firestore"
)

// Client bundles typed collection accessors over one Firestore database,
// mirroring the teacher's storage/firestore.Client (users/{uid}/...
// subcollections owned by their parent user document).
type Client struct {
	fs *firestore.Client
}

// NewFirestoreClient wraps an already-connected Firestore client.
func NewFirestoreClient(fs *firestore.Client) *Client {
	return &Client{fs: fs}
}

// Close releases the underlying Firestore connection.
func (c *Client) Close() error {
	return c.fs.Close()
}

// Users is the top-level collection users/{uid}, the parent document of
// every per-user subcollection below.
func (c *Client) Users() *Collection[userDoc] {
	return &Collection[userDoc]{
		Ref:           c.fs.Collection("users"),
		ToFirestore:   userToFirestore,
		FromFirestore: firestoreToUser,
	}
}

// Activities are sub-collections of Users: users/{uid}/activities/{providerActivityID}
func (c *Client) Activities(userID string) *Collection[activityDoc] {
	return &Collection[activityDoc]{
		Ref:           c.fs.Collection("users").Doc(userID).Collection("activities"),
		ToFirestore:   activityToFirestore,
		FromFirestore: firestoreToActivity,
	}
}

// Cursors is a top-level collection: sync_cursors/{uid}
func (c *Client) Cursors() *Collection[cursorDoc] {
	return &Collection[cursorDoc]{
		Ref:           c.fs.Collection("sync_cursors"),
		ToFirestore:   cursorToFirestore,
		FromFirestore: firestoreToCursor,
	}
}

// HikingProfiles are sub-collections of Users: users/{uid}/profiles/hiking
func (c *Client) HikingProfiles(userID string) *Collection[hikingProfileDoc] {
	return &Collection[hikingProfileDoc]{
		Ref:           c.fs.Collection("users").Doc(userID).Collection("profiles"),
		ToFirestore:   hikingProfileToFirestore,
		FromFirestore: firestoreToHikingProfile,
	}
}

// RunProfiles are sub-collections of Users: users/{uid}/profiles/running
func (c *Client) RunProfiles(userID string) *Collection[runProfileDoc] {
	return &Collection[runProfileDoc]{
		Ref:           c.fs.Collection("users").Doc(userID).Collection("profiles"),
		ToFirestore:   runProfileToFirestore,
		FromFirestore: firestoreToRunProfile,
	}
}

// Tokens are sub-collections of Users: users/{uid}/tokens/{provider}
func (c *Client) Tokens(userID string) *Collection[tokenDoc] {
	return &Collection[tokenDoc]{
		Ref:           c.fs.Collection("users").Doc(userID).Collection("tokens"),
		ToFirestore:   tokenToFirestore,
		FromFirestore: firestoreToToken,
	}
}

// Notifications are sub-collections of Users: users/{uid}/notifications/{id}
func (c *Client) Notifications(userID string) *Collection[notificationDoc] {
	return &Collection[notificationDoc]{
		Ref:           c.fs.Collection("users").Doc(userID).Collection("notifications"),
		ToFirestore:   notificationToFirestore,
		FromFirestore: firestoreToNotification,
	}
}
