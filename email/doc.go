package email

// email is responsible for sending email to an SMTP relay, including
// connecting to the server, negotiating STARTTLS and authentication, and
// building a MIME-formatted message. It is not designed to represent the
// user-facing content of an email, and includes the HTML body in messages
// regardless of what it contains. Every failure is an *Error whose Kind tells
// the caller which stage of the send went wrong.
