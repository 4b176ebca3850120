package constants

const (
	APP_NAME         = "Inkblog"
	APP_TAGLINE      = "A collection of random musings."
	POST_DATE_LAYOUT = "January 02, 2006"

	MAX_TITLE_LENGTH    = 250
	MAX_NAME_LENGTH     = 250
	MAX_EMAIL_LENGTH    = 250
	MAX_URL_LENGTH      = 250
	MAX_COMMENT_LENGTH  = 500
	MAX_PASSWORD_LENGTH = 72 // bcrypt ignores everything past 72 bytes
	MAX_MESSAGE_LENGTH  = 5000

	CONTACT_SUBJECT = "New Message From A User"
	AVATAR_SIZE     = 100
)
