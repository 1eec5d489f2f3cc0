package user

type UsernameOption struct {
	Username string
}

func (option *UsernameOption) Validate() error {
	if len(option.Username) == 0 {
		return ErrUsernameRequired
	}
	return nil
}
