package html

// html is responsible for generating HTML bodies for account emails, either
// from the page templates in a template directory or, for bare password
// reset links, from a built-in template. It's not concerned with the
// lower-level logic involved in sending the email.
