package user

type CreateOptions struct {
	Username string
	Password string
}
