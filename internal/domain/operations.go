package domain

// GetSessionsOperation returns the "get sessions" query. The conference is selected by
// the transport endpoint, so the query takes no variables.
func GetSessionsOperation() Operation {
	return Operation{
		Name: "GetSessions",
		Document: `query GetSessions {
  sessions {
    __typename
    id
    title
    sessionDescription
    startsAt
    endsAt
    tags
    room { __typename id name }
    speakers {
      __typename
      id
      name
      company
      city
      bio
      photoUrl
      socials { name link }
    }
  }
}`,
		RootFields: []string{"sessions"},
	}
}

// GetBookmarksOperation returns the signed-in user's bookmarks query.
func GetBookmarksOperation() Operation {
	return Operation{
		Name: "GetBookmarks",
		Document: `query GetBookmarks {
  bookmarks { __typename id sessionIds }
}`,
		RootFields: []string{"bookmarks"},
	}
}

// AddBookmarkOperation returns the mutation bookmarking sessionID.
func AddBookmarkOperation(sessionID string) Operation {
	return Operation{
		Name: "AddBookmark",
		Document: `mutation AddBookmark($sessionId: String!) {
  addBookmark(sessionId: $sessionId) { __typename id sessionIds }
}`,
		Variables:  map[string]any{"sessionId": sessionID},
		RootFields: []string{"addBookmark"},
		Mutation:   true,
	}
}

// RemoveBookmarkOperation returns the mutation removing sessionID from the bookmarks.
func RemoveBookmarkOperation(sessionID string) Operation {
	return Operation{
		Name: "RemoveBookmark",
		Document: `mutation RemoveBookmark($sessionId: String!) {
  removeBookmark(sessionId: $sessionId) { __typename id sessionIds }
}`,
		Variables:  map[string]any{"sessionId": sessionID},
		RootFields: []string{"removeBookmark"},
		Mutation:   true,
	}
}
